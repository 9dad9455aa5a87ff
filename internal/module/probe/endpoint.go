package probe

import (
	"fmt"
	"strings"
)

// Endpoint identifies one backend instance under test.
type Endpoint struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
}

// Fleet is the immutable set of endpoints configured at process start.
type Fleet struct {
	endpoints []Endpoint
	byID      map[string]Endpoint
}

// NewFleet validates the endpoint list and builds the fleet.
func NewFleet(endpoints []Endpoint) (*Fleet, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("fleet requires at least one endpoint")
	}

	byID := make(map[string]Endpoint, len(endpoints))
	for i, ep := range endpoints {
		if ep.ID == "" {
			return nil, fmt.Errorf("endpoint %d: id required", i)
		}
		if ep.BaseURL == "" {
			return nil, fmt.Errorf("endpoint %q: base_url required", ep.ID)
		}
		if _, ok := byID[ep.ID]; ok {
			return nil, fmt.Errorf("duplicate endpoint id: %s", ep.ID)
		}
		ep.BaseURL = strings.TrimRight(ep.BaseURL, "/")
		if ep.Name == "" {
			ep.Name = ep.ID
		}
		byID[ep.ID] = ep
		endpoints[i] = ep
	}

	return &Fleet{
		endpoints: endpoints,
		byID:      byID,
	}, nil
}

// All returns a copy of the endpoint list.
func (f *Fleet) All() []Endpoint {
	out := make([]Endpoint, len(f.endpoints))
	copy(out, f.endpoints)
	return out
}

// Get returns the endpoint with the given id.
func (f *Fleet) Get(id string) (Endpoint, bool) {
	ep, ok := f.byID[id]
	return ep, ok
}

// Len returns the number of configured endpoints.
func (f *Fleet) Len() int {
	return len(f.endpoints)
}
