package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCollyFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><p>招生 Admission 2025</p></body></html>"))
	}))
	defer srv.Close()

	f := NewCollyFetcher(FetchConfig{Timeout: 5 * time.Second, AllowPrivateHosts: true}, nil)
	f.IgnoreRobotsTxt = true
	f.DomainDelay = 0

	doc, err := f.Fetch(context.Background(), srv.URL+"/admission")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", doc.StatusCode)
	}
	if len(doc.Body) == 0 {
		t.Fatal("expected body")
	}

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
}

func TestCollyFetcher_RecoversOnRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<html><body>Admission open</body></html>"))
	}))
	defer srv.Close()

	f := NewCollyFetcher(FetchConfig{Timeout: 5 * time.Second, MaxRetries: 2, AllowPrivateHosts: true}, nil)
	f.IgnoreRobotsTxt = true
	f.DomainDelay = 0

	doc, err := f.Fetch(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc == nil || doc.StatusCode != http.StatusOK {
		t.Fatalf("expected a 200 document, got %+v", doc)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestCollyFetcher_NotFoundIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewCollyFetcher(FetchConfig{Timeout: 5 * time.Second, MaxRetries: 2, AllowPrivateHosts: true}, nil)
	f.IgnoreRobotsTxt = true
	f.DomainDelay = 0

	_, err := f.Fetch(context.Background(), srv.URL+"/gone")
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
}

func TestCollyFetcher_BlocksPrivateHosts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	f := NewCollyFetcher(FetchConfig{Timeout: 5 * time.Second}, nil)
	f.IgnoreRobotsTxt = true
	f.DomainDelay = 0

	if _, err := f.Fetch(context.Background(), srv.URL+"/admin"); err == nil {
		t.Fatal("expected loopback fetch to be refused")
	}
	if got := atomic.LoadInt32(&hits); got != 0 {
		t.Fatalf("expected no requests to reach the server, got %d", got)
	}
}
