// Package vlc provides a client for VLC's HTTP remote-control interface.
package vlc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrAuth indicates the configured VLC password was rejected.
var ErrAuth = errors.New("vlc: authentication failed")

// Client talks to VLC's HTTP interface (the "Web" Lua interface).
// All requests are plain GETs against /requests/ with empty-user basic auth.
type Client struct {
	baseURL  string
	password string
	http     *http.Client
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithBaseURL overrides the request base URL (useful for testing).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = base
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a new VLC HTTP client.
func NewClient(host string, port int, password string, opts ...Option) *Client {
	c := &Client{
		baseURL:  fmt.Sprintf("http://%s:%d/requests", host, port),
		password: password,
		http:     &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// request performs a GET against the given endpoint and returns the raw body.
func (c *Client) request(endpoint string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("vlc: build request for %s: %w", endpoint, err)
	}
	req.SetBasicAuth("", c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vlc: request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	log.Debug().Str("endpoint", endpoint).Int("code", resp.StatusCode).Msg("VLC response")

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrAuth
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("vlc: %s returned status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vlc: read %s response: %w", endpoint, err)
	}
	return body, nil
}

// sendCommand issues a command against status.xml and returns the resulting
// status. params may be nil.
func (c *Client) sendCommand(command string, params url.Values) (*Status, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("command", command)

	body, err := c.request("status.xml", params)
	if err != nil {
		return nil, err
	}
	return parseStatus(body)
}

func parseStatus(body []byte) (*Status, error) {
	var raw statusXML
	if err := xml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("vlc: parse status XML: %w", err)
	}
	return raw.toStatus(), nil
}

// GetStatus returns the player's current status.
func (c *Client) GetStatus() (*Status, error) {
	body, err := c.request("status.xml", nil)
	if err != nil {
		return nil, err
	}
	return parseStatus(body)
}

// GetPlaylist returns the current playlist in playlist order.
func (c *Client) GetPlaylist() ([]PlaylistItem, error) {
	body, err := c.request("playlist.xml", nil)
	if err != nil {
		return nil, err
	}

	var root nodeXML
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("vlc: parse playlist XML: %w", err)
	}
	return root.collect(nil), nil
}

// Play starts or resumes playback.
func (c *Client) Play() error {
	_, err := c.sendCommand("pl_play", nil)
	return err
}

// Pause pauses playback.
func (c *Client) Pause() error {
	_, err := c.sendCommand("pl_pause", nil)
	return err
}

// Stop stops playback.
func (c *Client) Stop() error {
	_, err := c.sendCommand("pl_stop", nil)
	return err
}

// Next skips to the next playlist item.
func (c *Client) Next() error {
	_, err := c.sendCommand("pl_next", nil)
	return err
}

// Previous jumps back to the previous playlist item.
func (c *Client) Previous() error {
	_, err := c.sendCommand("pl_previous", nil)
	return err
}

// Seek seeks within the current item. val follows VLC's seek syntax:
// an absolute second count, or a relative offset like "-10" or "+30".
func (c *Client) Seek(val string) error {
	params := url.Values{}
	params.Set("val", val)
	_, err := c.sendCommand("seek", params)
	return err
}

// PlayItem starts playback of a specific playlist item by its id.
func (c *Client) PlayItem(id string) error {
	params := url.Values{}
	params.Set("id", id)
	_, err := c.sendCommand("pl_play", params)
	if err != nil {
		return err
	}
	log.Debug().Str("item_id", id).Msg("Play command sent")
	return nil
}

// GetShuffleState reports whether shuffle (random) mode is enabled.
func (c *Client) GetShuffleState() (bool, error) {
	status, err := c.GetStatus()
	if err != nil {
		return false, err
	}
	return status.Random, nil
}

// ToggleShuffle flips shuffle (random) mode. VLC only exposes a toggle, not
// an absolute setter, so callers must read the state first if they need a
// specific value.
func (c *Client) ToggleShuffle() error {
	_, err := c.sendCommand("pl_random", nil)
	return err
}

// SetRate sets the playback rate (1.0 is normal speed).
func (c *Client) SetRate(rate float64) error {
	params := url.Values{}
	params.Set("val", strconv.FormatFloat(rate, 'f', -1, 64))
	_, err := c.sendCommand("rate", params)
	if err != nil {
		return err
	}
	log.Info().Float64("rate", rate).Msg("Set playback rate")
	return nil
}

// EnqueuePath appends a local file to the end of the playlist.
func (c *Client) EnqueuePath(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("vlc: resolve path %s: %w", path, err)
	}
	params := url.Values{}
	params.Set("input", fileURI(abs))
	_, err = c.sendCommand("in_enqueue", params)
	return err
}

// RepeatState reports the current repeat mode: "one" (repeat item),
// "all" (loop playlist) or "none".
func (c *Client) RepeatState() (string, error) {
	status, err := c.GetStatus()
	if err != nil {
		return "", err
	}
	switch {
	case status.Repeat:
		return "one", nil
	case status.Loop:
		return "all", nil
	default:
		return "none", nil
	}
}

// fileURI converts an absolute path to a file:// URI.
func fileURI(abs string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}
