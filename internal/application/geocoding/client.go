package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"house-marketplace/internal/domain"
)

const DefaultBaseURL = "https://maps.googleapis.com"

// Geocoding API status codes.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusUnknownError   = "UNKNOWN_ERROR"
)

// Geocoder translates a free-text address into candidate locations.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Response, error)
}

// LatLng is a coordinate pair as returned by the API.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Result is one geocoding candidate.
type Result struct {
	FormattedAddress string `json:"formatted_address"`
	Geometry         struct {
		Location LatLng `json:"location"`
	} `json:"geometry"`
}

// Response is the geocode/json response body.
type Response struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Results      []Result `json:"results"`
}

// First returns the top candidate, or nil when there are none.
func (r *Response) First() *Result {
	if r == nil || len(r.Results) == 0 {
		return nil
	}
	return &r.Results[0]
}

// HTTPClient is a Geocoder backed by the Google Geocoding HTTP API.
type HTTPClient struct {
	BaseURL string
	APIKey  string // optional; omitted from the query when empty
	Client  *http.Client // nil uses http.DefaultClient; the request context bounds the call
}

// Geocode issues one GET request for address. Service-side failures (quota, denied key, unknown error)
// are returned as ErrGeocoderUnavailable; ZERO_RESULTS and INVALID_REQUEST come back as a normal response.
func (c *HTTPClient) Geocode(ctx context.Context, address string) (*Response, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	q := url.Values{}
	q.Set("address", address)
	if c.APIKey != "" {
		q.Set("key", c.APIKey)
	}
	endpoint := base + "/maps/api/geocode/json?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeocoderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d body: %s", domain.ErrGeocoderUnavailable, resp.StatusCode, string(body))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrGeocoderUnavailable, err)
	}
	switch out.Status {
	case StatusOverQueryLimit, StatusRequestDenied, StatusUnknownError:
		return nil, fmt.Errorf("%w: %s %s", domain.ErrGeocoderUnavailable, out.Status, out.ErrorMessage)
	}
	return &out, nil
}
