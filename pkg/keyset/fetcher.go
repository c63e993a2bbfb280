package keyset

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultIssuerDomain is the apex domain under which issuer teams publish
// their certificate endpoints.
const DefaultIssuerDomain = "cloudflareaccess.com"

// DefaultFetchTimeout bounds a single certs request. The upstream plugin
// relied on the host HTTP client's default; an explicit bound keeps a slow
// issuer from stalling login requests.
const DefaultFetchTimeout = 10 * time.Second

// maxCertsBody limits the certs response size (1 MB).
const maxCertsBody = 1 << 20

// FetchError reports a failed or unparseable key fetch. It is not
// retriable within a single login attempt; a later attempt may force a
// fresh fetch.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching signing keys from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves the issuer's public signing keys over HTTPS.
type Fetcher struct {
	url    string
	client *http.Client
}

// NewFetcher creates a fetcher for the given issuer team. An empty
// issuerDomain falls back to DefaultIssuerDomain; a zero timeout falls
// back to DefaultFetchTimeout.
func NewFetcher(teamName, issuerDomain string, timeout time.Duration) *Fetcher {
	if issuerDomain == "" {
		issuerDomain = DefaultIssuerDomain
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		url:    fmt.Sprintf("https://%s.%s/cdn-cgi/access/certs", teamName, issuerDomain),
		client: &http.Client{Timeout: timeout},
	}
}

// URL returns the certs endpoint this fetcher targets.
func (f *Fetcher) URL() string { return f.url }

// SetEndpoint overrides the certs endpoint. Used by tests and by hosts
// fronting the issuer with an internal proxy.
func (f *Fetcher) SetEndpoint(url string) { f.url = url }

// Fetch retrieves and parses the current key set, returning both the
// parsed set and the raw document for caching.
func (f *Fetcher) Fetch(ctx context.Context) (*KeySet, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, nil, &FetchError{URL: f.url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, &FetchError{URL: f.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &FetchError{URL: f.url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCertsBody))
	if err != nil {
		return nil, nil, &FetchError{URL: f.url, Err: err}
	}

	set, err := parseKeySet(raw)
	if err != nil {
		return nil, nil, &FetchError{URL: f.url, Err: err}
	}

	return set, raw, nil
}
