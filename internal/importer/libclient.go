package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// LibrarySection is one browsable section of the foreign media server.
type LibrarySection struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// MediaPart is one file behind a library item.
type MediaPart struct {
	Key        string `json:"key"`
	Container  string `json:"container"`
	VideoCodec string `json:"video_codec"`
	AudioCodec string `json:"audio_codec"`
	Resolution string `json:"resolution"`
}

// LibraryItem is one item of a foreign library section, as returned by the
// media server's API.
type LibraryItem struct {
	RatingKey             string      `json:"rating_key"`
	GUID                  string      `json:"guid"`
	SectionID             string      `json:"section_id"`
	Type                  string      `json:"type"`
	Title                 string      `json:"title"`
	Year                  int         `json:"year"`
	OriginallyAvailableAt string      `json:"originally_available_at"`
	Summary               string      `json:"summary"`
	ContentRating         string      `json:"content_rating"`
	Thumb                 string      `json:"thumb"`
	Art                   string      `json:"art"`
	DurationMs            int         `json:"duration"`
	Genres                []string    `json:"genres"`
	Directors             []string    `json:"directors"`
	Parts                 []MediaPart `json:"parts"`
}

func (li *LibraryItem) FirstPart() *MediaPart {
	if len(li.Parts) == 0 {
		return nil
	}
	return &li.Parts[0]
}

// LibraryClient fetches sections and items from the foreign media server.
// An unreachable server surfaces before any item is processed and aborts
// the whole run.
type LibraryClient interface {
	Sections(ctx context.Context) ([]LibrarySection, error)
	SectionItems(ctx context.Context, sectionID string) ([]LibraryItem, error)
}

// MediaServerClient is the HTTP implementation of LibraryClient.
type MediaServerClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewMediaServerClient(baseURL, token string) *MediaServerClient {
	return &MediaServerClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *MediaServerClient) Sections(ctx context.Context) ([]LibrarySection, error) {
	var body struct {
		Sections []LibrarySection `json:"sections"`
	}
	if err := c.get(ctx, "/library/sections", nil, &body); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return body.Sections, nil
}

func (c *MediaServerClient) SectionItems(ctx context.Context, sectionID string) ([]LibraryItem, error) {
	var body struct {
		Items []LibraryItem `json:"items"`
	}
	q := url.Values{"include_parts": {"1"}}
	if err := c.get(ctx, "/library/sections/"+url.PathEscape(sectionID)+"/all", q, &body); err != nil {
		return nil, fmt.Errorf("list section %s items: %w", sectionID, err)
	}
	for i := range body.Items {
		if body.Items[i].SectionID == "" {
			body.Items[i].SectionID = sectionID
		}
	}
	return body.Items, nil
}

func (c *MediaServerClient) get(ctx context.Context, path string, q url.Values, dst interface{}) error {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Media-Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("media server returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
