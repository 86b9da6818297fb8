package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// Shared address space and other ranges that IsPrivate does not cover.
var extraBlocked = []netip.Prefix{
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("198.18.0.0/15"),
}

// HTTPFetcher is the default page fetcher: one GET per page with browser
// headers, a hard timeout and retries on 429/5xx. HTML in legacy encodings
// such as Big5 is transcoded to UTF-8.
type HTTPFetcher struct {
	Client *http.Client
	cfg    FetchConfig
}

func NewHTTPFetcher(cfg FetchConfig) *HTTPFetcher {
	cfg = cfg.withDefaults()

	dialer := &net.Dialer{Timeout: 15 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	redirect := checkRedirect(false)
	if !cfg.AllowPrivateHosts {
		transport.DialContext = publicOnlyDial(dialer)
		redirect = checkRedirect(true)
	}

	return &HTTPFetcher{
		Client: &http.Client{
			Timeout:       cfg.Timeout,
			Transport:     transport,
			CheckRedirect: redirect,
		},
		cfg: cfg,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*FetchedDocument, error) {
	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(500<<uint(attempt-1))*time.Millisecond +
				time.Duration(rand.Intn(100))*time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		doc, status, err := f.get(ctx, url)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !retryable(err, status) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (*FetchedDocument, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.8,*/*;q=0.7")
	req.Header.Set("Accept-Language", f.cfg.AcceptLanguage)
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}

	doc := &FetchedDocument{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now(),
	}
	if !doc.IsPDF() {
		doc.Body = toUTF8(body, doc.ContentType)
	}
	return doc, resp.StatusCode, nil
}

// toUTF8 decodes body using the declared or sniffed charset. Bodies that are
// already valid UTF-8 are returned unchanged.
func toUTF8(body []byte, contentType string) []byte {
	if utf8.Valid(body) {
		return body
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return out
}

func retryable(err error, status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	case 0:
		t, ok := err.(interface{ Timeout() bool })
		return ok && t.Timeout()
	}
	return false
}

// publicOnlyDial resolves the host once, refuses non-public addresses and
// dials the checked address so a second lookup cannot swap it.
func publicOnlyDial(d *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return nil, err
		}
		if len(addrs) == 0 {
			return nil, fmt.Errorf("no addresses for %s", host)
		}
		for _, a := range addrs {
			if blockedAddr(a) {
				return nil, fmt.Errorf("blocked non-public address %s for %s", a, host)
			}
		}
		return d.DialContext(ctx, network, net.JoinHostPort(addrs[0].Unmap().String(), port))
	}
}

func blockedAddr(a netip.Addr) bool {
	a = a.Unmap()
	if !a.IsValid() || !a.IsGlobalUnicast() || a.IsPrivate() {
		return true
	}
	for _, p := range extraBlocked {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func checkRedirect(publicOnly bool) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("stopped after 10 redirects")
		}
		if !publicOnly {
			return nil
		}
		if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
			return fmt.Errorf("redirect to %s scheme blocked", req.URL.Scheme)
		}
		host := strings.ToLower(req.URL.Hostname())
		if host == "" || host == "localhost" || strings.HasSuffix(host, ".local") {
			return fmt.Errorf("redirect to internal host %q blocked", host)
		}
		return nil
	}
}
