// Package fetcher retrieves remote documents politely: randomized browser
// headers, pacing between attempts, anti-bot block detection and bounded
// retries for soft failures.
package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrBlocked means the upstream answered with a 403 or an anti-bot
	// challenge. Blocked requests are never retried.
	ErrBlocked = eris.New("fetcher: request blocked")

	// ErrExhausted means every attempt ended in a soft failure.
	ErrExhausted = eris.New("fetcher: retries exhausted")
)

// Request describes a single logical fetch. Zero MaxRetries uses the
// fetcher default.
type Request struct {
	URL        string
	Method     string
	Params     url.Values
	Referer    string
	MaxRetries int
}

// Fetcher downloads remote documents.
type Fetcher interface {
	// Fetch returns the response body of a successful (2xx) response.
	Fetch(ctx context.Context, req Request) ([]byte, error)

	// FetchToFile fetches req and writes the body to path. Returns bytes written.
	FetchToFile(ctx context.Context, req Request, path string) (int64, error)
}

// target resolves the final URL and request body for req.
func (r Request) target() (string, string, string, error) {
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", "", "", eris.Wrapf(err, "fetcher: parse url %q", r.URL)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", "", eris.Errorf("fetcher: url %q is not absolute", r.URL)
	}

	var body string
	if len(r.Params) > 0 {
		if method == http.MethodGet || method == http.MethodHead {
			q := u.Query()
			for k, vs := range r.Params {
				for _, v := range vs {
					q.Add(k, v)
				}
			}
			u.RawQuery = q.Encode()
		} else {
			body = r.Params.Encode()
		}
	}
	return method, u.String(), body, nil
}
