package gpauth

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
)

// More recent servers do not appear to require this specific value, but
// there is no good way to detect them.
const userAgent = "PAN GlobalProtect"

const contentTypeForm = "application/x-www-form-urlencoded"

// HTTPTransport is the default Transport over net/http.
type HTTPTransport struct {
	// Scheme defaults to https; tests point it at plain-http servers.
	Scheme string

	client *http.Client
	host   string
	logger log.Logger
}

// NewTransport returns a Transport targeting host (host[:port]).
func NewTransport(host string, logger log.Logger) *HTTPTransport {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &HTTPTransport{
		Scheme: "https",
		client: &http.Client{},
		host:   host,
		logger: logger,
	}
}

func (t *HTTPTransport) Host() string { return t.host }

func (t *HTTPTransport) SetHost(host string) { t.host = host }

// Reset drops the pooled connections so the next request opens a fresh
// one. The server refuses logout while the tunnel session's connection is
// still up.
func (t *HTTPTransport) Reset() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) Submit(ctx context.Context, method, path, contentType string, body []byte, followRedirects bool) ([]byte, error) {
	url := t.Scheme + "://" + t.host + "/" + strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create http request")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "identity")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	client := t.client
	if !followRedirects {
		c := *t.client
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		client = &c
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to %s failed", url)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read response from %s", url)
	}

	// Protocol errors ride in the body of 4xx/5xx responses (512 is
	// typical), so the status code alone is not a failure.
	level.Debug(t.logger).Log("msg", "received response", "url", resp.Request.URL.String(), "status", resp.StatusCode, "bytes", len(data))

	if followRedirects {
		// Track where redirects took us; subsequent requests go there.
		if h := resp.Request.URL.Host; h != "" && h != t.host {
			level.Debug(t.logger).Log("msg", "following server redirect", "host", h)
			t.host = h
		}
	}
	return data, nil
}
