// Package registry talks to remote provider registries and shields the rest
// of the system from them with a staleness-bounded, fail-open cache.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/JerrettDavis/McpManager-sub000/internal/store"
)

// Source is the read contract a remote registry must satisfy. The cache
// composes over any Source; nothing in this package inherits from a client.
type Source interface {
	// Name identifies the registry. Cache rows are keyed by it.
	Name() string
	// List fetches the registry's full provider listing, following
	// pagination to the end.
	List(ctx context.Context) ([]store.Provider, error)
}

const (
	defaultPageSize    = 100
	defaultHTTPTimeout = 15 * time.Second
	maxPages           = 1000
)

// Client is an HTTP Source. The remote API serves paginated provider
// listings at GET {base}/providers?cursor=&limit=.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
}

// NewClient creates a Source for the registry at baseURL.
func NewClient(name, baseURL string) *Client {
	return &Client{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (c *Client) Name() string { return c.name }

// listPage mirrors the registry's wire format for one page of results.
type listPage struct {
	Providers []wireProvider `json:"providers"`
	Metadata  struct {
		NextCursor string `json:"nextCursor"`
	} `json:"metadata"`
}

// wireProvider is the registry's provider shape. The remote id is carried
// as-is; the reconciler decides what the catalog id ends up being.
type wireProvider struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Version        string            `json:"version"`
	Author         string            `json:"author"`
	SourceURL      string            `json:"sourceUrl"`
	InvocationSpec string            `json:"invocationSpec"`
	Tags           []string          `json:"tags"`
	Config         map[string]string `json:"config"`
}

// List fetches all pages of the registry listing.
func (c *Client) List(ctx context.Context) ([]store.Provider, error) {
	var all []store.Provider
	cursor := ""

	for page := 0; page < maxPages; page++ {
		p, err := c.fetchPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, wp := range p.Providers {
			all = append(all, wp.toProvider())
		}
		if p.Metadata.NextCursor == "" {
			return all, nil
		}
		cursor = p.Metadata.NextCursor
	}
	return nil, fmt.Errorf("registry %q: pagination did not terminate", c.name)
}

func (c *Client) fetchPage(ctx context.Context, cursor string) (*listPage, error) {
	u, err := url.Parse(c.baseURL + "/providers")
	if err != nil {
		return nil, fmt.Errorf("registry %q: invalid base URL: %w", c.name, err)
	}
	q := u.Query()
	q.Set("limit", fmt.Sprintf("%d", defaultPageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("registry %q: building request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry %q: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry %q: unexpected status %s", c.name, resp.Status)
	}

	var page listPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("registry %q: decoding response: %w", c.name, err)
	}
	return &page, nil
}

func (wp wireProvider) toProvider() store.Provider {
	return store.Provider{
		ID:             wp.ID,
		Name:           wp.Name,
		Description:    wp.Description,
		Version:        wp.Version,
		Author:         wp.Author,
		SourceURL:      wp.SourceURL,
		InvocationSpec: wp.InvocationSpec,
		Tags:           wp.Tags,
		GlobalConfig:   wp.Config,
	}
}
