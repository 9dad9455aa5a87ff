package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Client issues the per-endpoint protocol calls. All calls are bearer-token
// authenticated JSON exchanges against an endpoint's base URL.
type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a protocol client on top of a shared HTTP client.
func NewClient(httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:   httpClient,
		logger: logger.Named("probe-client"),
	}
}

// GenerateImage issues the single-call text-to-image generation request.
func (c *Client) GenerateImage(ctx context.Context, ep Endpoint, token string, req *generateImageRequest) (*generateImageResponse, error) {
	var resp generateImageResponse
	if err := c.postJSON(ctx, ep.BaseURL+"/api/image/generate", token, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadMedia registers one reference image and returns the raw upload
// response for fallback-chain extraction.
func (c *Client) UploadMedia(ctx context.Context, ep Endpoint, token string, img ReferenceImage) (*uploadMediaResponse, error) {
	req := &uploadMediaRequest{
		RawBytes: img.Base64(),
		MimeType: img.MimeType,
	}
	var resp uploadMediaResponse
	if err := c.postJSON(ctx, ep.BaseURL+"/api/media/upload", token, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunRecipe composes the uploaded reference media into one edited image.
func (c *Client) RunRecipe(ctx context.Context, ep Endpoint, token string, req *runRecipeRequest) (*generateImageResponse, error) {
	var resp generateImageResponse
	if err := c.postJSON(ctx, ep.BaseURL+"/api/recipe/run", token, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadVideoFrame registers the start-frame image for video generation.
func (c *Client) UploadVideoFrame(ctx context.Context, ep Endpoint, token string, img ReferenceImage) (*uploadMediaResponse, error) {
	req := &uploadMediaRequest{
		RawBytes: img.Base64(),
		MimeType: img.MimeType,
	}
	var resp uploadMediaResponse
	if err := c.postJSON(ctx, ep.BaseURL+"/api/video/upload", token, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateVideo starts one image-to-video generation and returns the
// operation handles to poll.
func (c *Client) GenerateVideo(ctx context.Context, ep Endpoint, token string, req *generateVideoRequest) (*generateVideoResponse, error) {
	var resp generateVideoResponse
	if err := c.postJSON(ctx, ep.BaseURL+"/api/video/generate", token, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckOperations polls the given operation handles. The handles returned by
// the endpoint replace the submitted ones.
func (c *Client) CheckOperations(ctx context.Context, ep Endpoint, token string, ops []Operation) ([]Operation, error) {
	req := &checkOperationsRequest{Operations: ops}
	var resp checkOperationsResponse
	if err := c.postJSON(ctx, ep.BaseURL+"/api/video/status", token, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Operations) == 0 {
		// Keep the submitted handles when the endpoint omits them.
		return ops, nil
	}
	return resp.Operations, nil
}

// DownloadVideo fetches the final video bytes through the endpoint, avoiding
// direct cross-origin retrieval of the source URL. Returns the content and
// its media type.
func (c *Client) DownloadVideo(ctx context.Context, ep Endpoint, token, sourceURL string) ([]byte, string, error) {
	u := ep.BaseURL + "/api/video/download?url=" + url.QueryEscape(sourceURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, "", &DownloadError{URL: sourceURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &DownloadError{URL: sourceURL, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &DownloadError{
			URL: sourceURL,
			Err: &HTTPError{StatusCode: resp.StatusCode, Message: extractErrorMessage(body, resp.StatusCode)},
		}
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "video/mp4"
	}
	return body, mediaType, nil
}

// Ping performs a lightweight reachability check against an endpoint.
func (c *Client) Ping(ctx context.Context, ep Endpoint) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.BaseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	return nil
}

// postJSON executes one authenticated JSON POST. Non-success statuses are
// converted into an HTTPError with a defensively extracted message.
func (c *Client) postJSON(ctx context.Context, url, token string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("endpoint call failed",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(respBody, resp.StatusCode),
		}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// extractErrorMessage attempts a structured parse of an error body, falls
// back to the raw text, and finally to a generic message.
func extractErrorMessage(body []byte, status int) string {
	var structured struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &structured); err == nil &&
		structured.Error != nil && structured.Error.Message != "" {
		return structured.Error.Message
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}

	return fmt.Sprintf("Request failed with status %d", status)
}
