// Package httpclient is a JSON-over-HTTP client for the platform's REST
// endpoints. RPA orchestrators live on private networks, so private
// addresses are allowed; only the scheme and host are validated.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/rpawatch/errors"
	"github.com/teranos/rpawatch/version"
)

// maxErrorBody bounds how much of a failed response is kept in the error
const maxErrorBody = 512

// Client wraps http.Client with URL validation and JSON helpers
type Client struct {
	*http.Client
	allowedSchemes []string
	maxRedirects   int
}

// New creates a client with the given timeout
func New(timeout time.Duration) *Client {
	c := &Client{
		Client:         &http.Client{Timeout: timeout},
		allowedSchemes: []string{"http", "https"},
		maxRedirects:   10,
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}
	return c
}

// Wrap uses an existing http.Client, e.g. an httptest server's
func Wrap(client *http.Client) *Client {
	return &Client{Client: client, allowedSchemes: []string{"http", "https"}, maxRedirects: 10}
}

func (c *Client) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range c.allowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}
	if u.Hostname() == "" {
		return errors.New("URL missing hostname")
	}
	return nil
}

// ValidateURL parses and validates urlStr
func (c *Client) ValidateURL(urlStr string) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// PostJSON sends in as a JSON body and decodes a 2xx response into out.
// headers are added to the request; out may be nil.
func (c *Client) PostJSON(ctx context.Context, urlStr string, headers map[string]string, in, out interface{}) error {
	u, err := c.ValidateURL(urlStr)
	if err != nil {
		return err
	}

	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.Get().UserAgent())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s failed", u.Path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.WithDetail(
			errors.Newf("POST %s returned %d", u.Path, resp.StatusCode),
			strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode response from %s", u.Path)
	}
	return nil
}
