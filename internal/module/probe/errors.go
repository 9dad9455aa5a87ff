package probe

import (
	"errors"
	"fmt"
)

// Failure messages surfaced to run observers. The exact wording is part of
// the harness contract with its consumers.
var (
	ErrNoCredential     = errors.New("No access token provided")
	ErrNoReferenceImage = errors.New("No reference image provided")
	ErrNoImageReturned  = errors.New("No image returned")
	ErrNoMediaID        = errors.New("No media id returned")
	ErrNoOperations     = errors.New("No operations returned")
	ErrPollTimeout      = errors.New("Timeout or no URL returned")
)

// HTTPError is a non-success response from an endpoint. The message is
// extracted defensively: structured error payload first, then raw body text,
// then a generic message.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// OperationError is reported by a polled operation itself. It is terminal
// and never retried.
type OperationError struct {
	Message string
}

func (e *OperationError) Error() string {
	return e.Message
}

// DownloadError indicates the result URL was located but the content fetch
// failed.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("video download failed: %v", e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// CropError is a non-fatal failure of the cropping collaborator. Callers log
// it and continue with the uncropped image.
type CropError struct {
	Err error
}

func (e *CropError) Error() string {
	return fmt.Sprintf("crop failed: %v", e.Err)
}

func (e *CropError) Unwrap() error {
	return e.Err
}
