package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hkrewson/collectz/internal/models"
)

// Candidate is one record returned by the external metadata lookup.
type Candidate struct {
	CatalogID      string   `json:"catalog_id"`
	CatalogSubtype string   `json:"catalog_subtype"`
	Title          string   `json:"title"`
	Year           *int     `json:"year,omitempty"`
	Director       *string  `json:"director,omitempty"`
	Genre          *string  `json:"genre,omitempty"`
	Rating         *string  `json:"rating,omitempty"`
	Overview       *string  `json:"overview,omitempty"`
	PosterURL      *string  `json:"poster_url,omitempty"`
	BackdropURL    *string  `json:"backdrop_url,omitempty"`
	RuntimeMin     *int     `json:"runtime_minutes,omitempty"`
	Votes          int      `json:"votes"`
	Popularity     float64  `json:"popularity"`
	UPC            *string  `json:"upc,omitempty"`
	Studio         *string  `json:"studio,omitempty"`
	Genres         []string `json:"genres,omitempty"`
}

type searchResponse struct {
	Results []Candidate `json:"results"`
}

// Client calls the metadata lookup service. It only knows how to search;
// candidate selection and caching live in the Gateway.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Search queries the lookup service for candidates. Transient failures are
// retried a few times with exponential backoff before giving up.
func (c *Client) Search(ctx context.Context, title string, year *int, mediaType models.MediaType) ([]Candidate, error) {
	q := url.Values{}
	q.Set("title", title)
	q.Set("type", string(mediaType))
	if year != nil {
		q.Set("year", strconv.Itoa(*year))
	}
	endpoint := c.baseURL + "/api/v1/search?" + q.Encode()

	var candidates []Candidate
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("X-API-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusNotFound:
			candidates = nil
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("lookup service returned %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("lookup service returned %d", resp.StatusCode))
		}

		var body searchResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("decode lookup response: %w", err))
		}
		candidates = body.Results
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("search %q: %w", title, err)
	}
	return candidates, nil
}
