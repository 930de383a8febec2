package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/poimirror/poimirror/internal/domain"
)

// DefaultEndpoint is the public Overpass API interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// OverpassClient fetches snapshots from an Overpass-compatible endpoint.
type OverpassClient struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
}

// NewOverpassClient creates a client for the given endpoint.
// An empty endpoint falls back to DefaultEndpoint.
func NewOverpassClient(endpoint, userAgent string, timeout time.Duration) *OverpassClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OverpassClient{
		endpoint:  endpoint,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// overpassElement mirrors one element of the interpreter's JSON output.
// Ways and relations carry their location in "center" (requested via
// `out center`), nodes in lat/lon directly.
type overpassElement struct {
	Type   string  `json:"type"`
	ID     int64   `json:"id"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Tags      map[string]string `json:"tags"`
	Timestamp string            `json:"timestamp"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

// Fetch runs the query against the interpreter and returns the decoded
// snapshot. Overpass answers a query with every matching element, so a
// successfully decoded response is a complete snapshot for the scope;
// any transport or decode failure returns *TransportError instead of a
// partial result.
func (c *OverpassClient) Fetch(ctx context.Context, q Query) (*Snapshot, error) {
	ql := buildQL(q.Filter)

	form := url.Values{}
	form.Set("data", ql)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build source request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Endpoint: c.endpoint, Status: resp.StatusCode}
	}

	var decoded overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &TransportError{Endpoint: c.endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}

	snapshot := &Snapshot{
		Complete:  true,
		FetchedAt: time.Now().UTC(),
		Elements:  make([]Descriptor, 0, len(decoded.Elements)),
	}
	for _, el := range decoded.Elements {
		snapshot.Elements = append(snapshot.Elements, decodeElement(el))
	}
	return snapshot, nil
}

// buildQL expands a tag filter into a full Overpass QL statement covering
// all three element types, with centers for ways and relations.
func buildQL(filter string) string {
	return fmt.Sprintf(
		"[out:json][timeout:180];(node%[1]s;way%[1]s;relation%[1]s;);out center meta;",
		filter,
	)
}

func decodeElement(el overpassElement) Descriptor {
	d := Descriptor{
		Type: el.Type,
		Ref:  el.ID,
		Tags: el.Tags,
	}
	if d.Tags == nil {
		d.Tags = map[string]string{}
	}

	switch {
	case el.Type == "node":
		d.Point = &domain.Point{Lon: el.Lon, Lat: el.Lat}
	case el.Center != nil:
		d.Point = &domain.Point{Lon: el.Center.Lon, Lat: el.Center.Lat}
	}

	if el.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, el.Timestamp); err == nil {
			d.Timestamp = ts
		}
	}
	return d
}
