// Package ingest fetches school pages and turns them into analysable text.
package ingest

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultUserAgent is sent on every page request.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrUnexpectedStatus is wrapped into errors for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// FetchedDocument is a fully read response body.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// IsPDF reports whether the document should be read as a PDF.
func (d *FetchedDocument) IsPDF() bool {
	if strings.Contains(strings.ToLower(d.ContentType), "application/pdf") {
		return true
	}
	return len(d.Body) >= 5 && string(d.Body[:5]) == "%PDF-"
}

// Fetcher retrieves raw content from a URL. Network errors, timeouts and
// non-2xx responses are returned as errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// FetchConfig tunes the fetchers.
type FetchConfig struct {
	UserAgent      string        `yaml:"user_agent"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AcceptLanguage string        `yaml:"accept_language"`
	// AllowPrivateHosts disables the private-address guard. Only for local
	// development and tests.
	AllowPrivateHosts bool `yaml:"allow_private_hosts"`
}

func (c FetchConfig) withDefaults() FetchConfig {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = "en-US,en;q=0.5,zh-HK;q=0.3"
	}
	return c
}
