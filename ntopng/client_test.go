package ntopng

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/audilinea/extractor/config"
)

func clientFor(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())
	return NewClient(config.NtopngConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     "admin",
		Password: "secret",
	})
}

func TestFetch(t *testing.T) {
	t.Run("unwraps rsp and sends basic auth", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != "admin" || pass != "secret" {
				t.Errorf("missing or wrong basic auth: %q/%q", user, pass)
			}
			if !strings.HasPrefix(r.URL.Path, "/lua/rest/") {
				t.Errorf("expected /lua/rest/ prefix, got %s", r.URL.Path)
			}
			w.Write([]byte(`{"rsp": {"10.0.0.1": {}}}`))
		}))
		defer srv.Close()

		raw, err := clientFor(t, srv).Fetch(context.Background(), "get/host/active.json")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if string(raw) != `{"10.0.0.1": {}}` {
			t.Errorf("unexpected rsp payload: %s", raw)
		}
	})

	t.Run("non-2xx returns status error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		_, err := clientFor(t, srv).Fetch(context.Background(), "get/host/active.json")
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected StatusError, got %v", err)
		}
		if statusErr.Code != http.StatusForbidden {
			t.Errorf("expected code 403, got %d", statusErr.Code)
		}
		if statusErr.Resource != "get/host/active.json" {
			t.Errorf("expected resource in error, got %s", statusErr.Resource)
		}
	})

	t.Run("transport error surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		srv.Close()

		if _, err := clientFor(t, srv).Fetch(context.Background(), "get/host/active.json"); err == nil {
			t.Fatal("expected transport error, got nil")
		}
	})

	t.Run("invalid json surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()

		if _, err := clientFor(t, srv).Fetch(context.Background(), "get/host/active.json"); err == nil {
			t.Fatal("expected decode error, got nil")
		}
	})
}
