// Package tmdb provides movie metadata lookups via The Movie Database API.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cinecue/cinecue/internal/infra/cache"
)

const (
	// DefaultBaseURL is the TMDB API base URL.
	DefaultBaseURL = "https://api.themoviedb.org/3"

	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit - TMDB allows ~50 req/s but lookups are rare here.
	DefaultRateLimit = 4 // 4 requests per second

	// posterBaseURL is the image CDN prefix for poster paths.
	posterBaseURL = "https://image.tmdb.org/t/p/w500"
)

var (
	// ErrNoAPIKey indicates the client was built without an API key.
	ErrNoAPIKey = errors.New("tmdb: no API key configured")

	// ErrNotFound indicates the search returned no results.
	ErrNotFound = errors.New("tmdb: no results")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("tmdb: rate limited")

	// ErrTemporaryFailure indicates a temporary failure (should retry).
	ErrTemporaryFailure = errors.New("tmdb: temporary failure")
)

// Movie is the metadata returned for a title lookup.
type Movie struct {
	ID          int
	Title       string
	Overview    string
	ReleaseDate string
	Runtime     int
	Rating      float64
	PosterPath  string
	Genres      []string
}

// PosterURL returns the full poster image URL, or "" when no poster exists.
func (m *Movie) PosterURL() string {
	if m.PosterPath == "" {
		return ""
	}
	return posterBaseURL + m.PosterPath
}

// URL returns the movie's page on TMDB.
func (m *Movie) URL() string {
	return fmt.Sprintf("https://www.themoviedb.org/movie/%d", m.ID)
}

// Client looks up movie metadata from the TMDB API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rateLimiter
	cache      *cache.DB
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithBaseURL sets a custom base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCache sets a metadata cache consulted before the API.
func WithCache(db *cache.DB) Option {
	return func(c *Client) {
		c.cache = db
	}
}

// NewClient creates a new TMDB API client. An empty apiKey yields a client
// whose lookups fail with ErrNoAPIKey, so callers can wire it
// unconditionally.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: newRateLimiter(DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Enabled reports whether lookups can succeed.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

type searchResponse struct {
	Results []struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	} `json:"results"`
}

type movieResponse struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	Runtime     int     `json:"runtime"`
	VoteAverage float64 `json:"vote_average"`
	PosterPath  string  `json:"poster_path"`
	Genres      []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

// SearchMovie searches TMDB for a title and returns the first match with
// full details. The cache, when configured, is consulted first and updated
// on a successful lookup.
func (c *Client) SearchMovie(ctx context.Context, title string) (*Movie, error) {
	if !c.Enabled() {
		return nil, ErrNoAPIKey
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(title); ok {
			log.Debug().Str("title", title).Msg("Movie metadata cache hit")
			return fromCached(cached), nil
		}
	}

	var search searchResponse
	searchURL := fmt.Sprintf("%s/search/movie?api_key=%s&query=%s",
		c.baseURL, url.QueryEscape(c.apiKey), url.QueryEscape(title))
	if err := c.getJSON(ctx, searchURL, &search); err != nil {
		return nil, fmt.Errorf("search movie: %w", err)
	}
	if len(search.Results) == 0 {
		log.Debug().Str("title", title).Msg("No TMDB results")
		return nil, ErrNotFound
	}

	first := search.Results[0]
	log.Debug().Str("title", title).Str("match", first.Title).Msg("Found movie on TMDB")

	var details movieResponse
	detailsURL := fmt.Sprintf("%s/movie/%d?api_key=%s",
		c.baseURL, first.ID, url.QueryEscape(c.apiKey))
	if err := c.getJSON(ctx, detailsURL, &details); err != nil {
		return nil, fmt.Errorf("movie details: %w", err)
	}

	movie := &Movie{
		ID:          details.ID,
		Title:       details.Title,
		Overview:    details.Overview,
		ReleaseDate: details.ReleaseDate,
		Runtime:     details.Runtime,
		Rating:      details.VoteAverage,
		PosterPath:  details.PosterPath,
	}
	for _, g := range details.Genres {
		movie.Genres = append(movie.Genres, g.Name)
	}

	if c.cache != nil {
		if err := c.cache.Put(title, toCached(title, movie)); err != nil {
			log.Warn().Err(err).Str("title", title).Msg("Could not cache movie metadata")
		}
	}

	return movie, nil
}

// getJSON performs a rate-limited GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, requestURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Success
	case http.StatusTooManyRequests:
		log.Warn().Msg("TMDB rate limit exceeded")
		return ErrRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		log.Warn().Int("status", resp.StatusCode).Msg("TMDB temporary error")
		return ErrTemporaryFailure
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func fromCached(m *cache.Movie) *Movie {
	movie := &Movie{
		ID:          m.TMDBID,
		Title:       m.Title,
		Overview:    m.Overview,
		ReleaseDate: m.ReleaseDate,
		Runtime:     m.Runtime,
		Rating:      m.Rating,
		PosterPath:  m.PosterPath,
	}
	if m.Genres != "" {
		movie.Genres = strings.Split(m.Genres, ", ")
	}
	return movie
}

func toCached(query string, m *Movie) *cache.Movie {
	return &cache.Movie{
		Query:       query,
		TMDBID:      m.ID,
		Title:       m.Title,
		Overview:    m.Overview,
		ReleaseDate: m.ReleaseDate,
		Runtime:     m.Runtime,
		Rating:      m.Rating,
		PosterPath:  m.PosterPath,
		Genres:      strings.Join(m.Genres, ", "),
	}
}

// rateLimiter implements a simple token bucket rate limiter
type rateLimiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastRequest time.Time
}

func newRateLimiter(requestsPerSecond int) *rateLimiter {
	return &rateLimiter{
		interval: time.Second / time.Duration(requestsPerSecond),
	}
}

// Wait blocks until a request can be made
func (r *rateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	nextAllowed := r.lastRequest.Add(r.interval)

	if now.Before(nextAllowed) {
		select {
		case <-time.After(nextAllowed.Sub(now)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.lastRequest = time.Now()
	return nil
}
