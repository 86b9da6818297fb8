package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyFetcher fetches pages through a colly collector. It honours
// robots.txt, detects legacy charsets such as Big5 and spaces requests to the
// same host. Selected with MONITOR_FETCHER=colly.
type CollyFetcher struct {
	UserAgent         string
	MaxRetries        int
	RequestTimeout    time.Duration
	DomainDelay       time.Duration
	RandomDelayFactor float64
	IgnoreRobotsTxt   bool
	MaxBodySize       int
	DetectCharset     bool
	// AllowPrivateHosts disables the public-only dialer and redirect guard.
	AllowPrivateHosts bool

	log *zap.Logger
}

func NewCollyFetcher(cfg FetchConfig, log *zap.Logger) *CollyFetcher {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &CollyFetcher{
		UserAgent:         cfg.UserAgent,
		MaxRetries:        cfg.MaxRetries,
		RequestTimeout:    cfg.Timeout,
		DomainDelay:       1 * time.Second,
		RandomDelayFactor: 0.5,
		MaxBodySize:       int(cfg.MaxBodyBytes),
		DetectCharset:     true,
		AllowPrivateHosts: cfg.AllowPrivateHosts,
		log:               log.Named("colly"),
	}
}

func (f *CollyFetcher) buildCollector(ctx context.Context, host string) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		colly.AllowedDomains(host),
		colly.StdlibContext(ctx),
	}
	if f.DetectCharset {
		opts = append(opts, colly.DetectCharset())
	}
	if f.IgnoreRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}

	c := colly.NewCollector(opts...)
	_ = c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       f.DomainDelay,
		RandomDelay: time.Duration(float64(f.DomainDelay) * f.RandomDelayFactor),
	})
	c.SetRequestTimeout(f.RequestTimeout)
	if !f.AllowPrivateHosts {
		dialer := &net.Dialer{Timeout: 15 * time.Second, KeepAlive: 30 * time.Second}
		c.WithTransport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         publicOnlyDial(dialer),
			TLSHandshakeTimeout: 10 * time.Second,
			IdleConnTimeout:     90 * time.Second,
		})
		c.SetRedirectHandler(checkRedirect(true))
	}
	return c
}

// Fetch visits targetURL synchronously, retrying failed requests up to
// MaxRetries times.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	c := f.buildCollector(ctx, parsed.Hostname())

	var result *FetchedDocument
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode < 200 || r.StatusCode > 299 {
			fetchErr = fmt.Errorf("%w: %d", ErrUnexpectedStatus, r.StatusCode)
			return
		}
		result = &FetchedDocument{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
			FetchedAt:   time.Now(),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		retries, _ := r.Request.Ctx.GetAny("retries").(int)
		if retries < f.MaxRetries && ctx.Err() == nil && retryable(err, r.StatusCode) {
			r.Request.Ctx.Put("retries", retries+1)
			f.log.Warn("retrying fetch",
				zap.Int("attempt", retries+1),
				zap.Int("max_retries", f.MaxRetries),
				zap.String("url", r.Request.URL.String()),
				zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(retries+1) * time.Second):
				if retryErr := r.Request.Retry(); retryErr == nil || result != nil {
					return
				}
			}
		}
		if fetchErr != nil {
			return
		}
		if r.StatusCode != 0 {
			fetchErr = fmt.Errorf("%w: %d", ErrUnexpectedStatus, r.StatusCode)
			return
		}
		fetchErr = fmt.Errorf("fetch failed after %d retries: %w", retries, err)
	})

	visitErr := c.Visit(targetURL)
	c.Wait()

	// A retry that succeeded inside OnError leaves the first attempt's error
	// on Visit, so the collected result wins.
	if result != nil {
		return result, nil
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if visitErr != nil {
		return nil, fmt.Errorf("visit %s: %w", targetURL, visitErr)
	}
	return nil, errors.New("no response from " + targetURL)
}
