// Package places talks to the Google Places web service to enrich listings
// with ratings, contact details and photos.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/config"
	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/httpretry"
)

var (
	ErrNoMatch       = errors.New("places: no matching place")
	ErrNotConfigured = errors.New("places: api key not configured")
)

// APIError is a non-OK status reported by the service.
type APIError struct {
	Status  string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("places: %s: %s", e.Status, e.Message)
	}
	return "places: " + e.Status
}

// Candidate is one FindPlace match.
type Candidate struct {
	PlaceID string `json:"place_id"`
	Name    string `json:"name"`
	Address string `json:"formatted_address"`
}

// Photo references an image held by the service.
type Photo struct {
	Reference   string
	Width       int
	Height      int
	Attribution string
}

// Details is the subset of place details used for enrichment.
type Details struct {
	PlaceID     string
	Name        string
	Rating      *float64
	ReviewCount *int
	Phone       string
	Website     string
	PostalCode  string
	Photos      []Photo
}

// Client is a rate-limited places API client. Transport failures are
// retried by httpretry; callers see one result per call.
type Client struct {
	baseURL string
	apiKey  string
	http    httpretry.HTTPDoer
	limiter *rate.Limiter
}

// New builds a client from config.
func New(cfg config.PlacesConfig) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	doer := httpretry.NewRetryClient(&http.Client{Timeout: timeout}, cfg.MaxRetries)
	return NewClient(cfg.BaseURL, cfg.APIKey, doer, cfg.RequestsPerSecond)
}

// NewClient builds a client over any HTTPDoer. rps <= 0 disables limiting.
func NewClient(baseURL, apiKey string, doer httpretry.HTTPDoer, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    doer,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.apiKey != "" }

func (c *Client) get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "contractor-directory/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("places request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &APIError{Status: strconv.Itoa(resp.StatusCode), Message: resp.Status}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, dst interface{}) error {
	resp, err := c.get(ctx, path, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func statusErr(status, message string) error {
	switch status {
	case "OK":
		return nil
	case "ZERO_RESULTS", "NOT_FOUND":
		return ErrNoMatch
	default:
		return &APIError{Status: status, Message: message}
	}
}

// FindPlace returns the best match for a free-text query such as
// "Acme Roofing, Leeds".
func (c *Client) FindPlace(ctx context.Context, query string) (*Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoMatch
	}
	var body struct {
		Candidates   []Candidate `json:"candidates"`
		Status       string      `json:"status"`
		ErrorMessage string      `json:"error_message"`
	}
	err := c.getJSON(ctx, "/findplacefromtext/json", url.Values{
		"input":     {query},
		"inputtype": {"textquery"},
		"fields":    {"place_id,name,formatted_address"},
	}, &body)
	if err != nil {
		return nil, err
	}
	if err := statusErr(body.Status, body.ErrorMessage); err != nil {
		return nil, err
	}
	if len(body.Candidates) == 0 || body.Candidates[0].PlaceID == "" {
		return nil, ErrNoMatch
	}
	return &body.Candidates[0], nil
}

type detailsResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Rating           *float64 `json:"rating"`
	UserRatingsTotal *int     `json:"user_ratings_total"`
	Phone            string   `json:"formatted_phone_number"`
	Website          string   `json:"website"`
	Components       []struct {
		LongName string   `json:"long_name"`
		Types    []string `json:"types"`
	} `json:"address_components"`
	Photos []struct {
		Reference    string   `json:"photo_reference"`
		Width        int      `json:"width"`
		Height       int      `json:"height"`
		Attributions []string `json:"html_attributions"`
	} `json:"photos"`
}

// Details fetches rating, contact and photo data for placeID.
func (c *Client) Details(ctx context.Context, placeID string) (*Details, error) {
	var body struct {
		Result       detailsResult `json:"result"`
		Status       string        `json:"status"`
		ErrorMessage string        `json:"error_message"`
	}
	err := c.getJSON(ctx, "/details/json", url.Values{
		"place_id": {placeID},
		"fields":   {"place_id,name,rating,user_ratings_total,formatted_phone_number,website,address_components,photos"},
	}, &body)
	if err != nil {
		return nil, err
	}
	if err := statusErr(body.Status, body.ErrorMessage); err != nil {
		return nil, err
	}

	r := body.Result
	d := &Details{
		PlaceID:     placeID,
		Name:        r.Name,
		Rating:      r.Rating,
		ReviewCount: r.UserRatingsTotal,
		Phone:       r.Phone,
		Website:     r.Website,
	}
	if r.PlaceID != "" {
		d.PlaceID = r.PlaceID
	}
	for _, comp := range r.Components {
		for _, t := range comp.Types {
			if t == "postal_code" {
				d.PostalCode = comp.LongName
			}
		}
	}
	for _, p := range r.Photos {
		if p.Reference == "" {
			continue
		}
		ph := Photo{Reference: p.Reference, Width: p.Width, Height: p.Height}
		if len(p.Attributions) > 0 {
			ph.Attribution = p.Attributions[0]
		}
		d.Photos = append(d.Photos, ph)
	}
	return d, nil
}

// maxPhotoBytes caps a single photo download.
const maxPhotoBytes = 15 << 20

// Photo downloads the image bytes for ref scaled to at most maxWidth.
func (c *Client) Photo(ctx context.Context, ref string, maxWidth int) ([]byte, string, error) {
	if maxWidth <= 0 {
		maxWidth = 1600
	}
	resp, err := c.get(ctx, "/photo", url.Values{
		"photo_reference": {ref},
		"maxwidth":        {strconv.Itoa(maxWidth)},
	})
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes))
	if err != nil {
		return nil, "", fmt.Errorf("reading photo: %w", err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return data, ct, nil
}
