package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStaticToken(t *testing.T) {
	if _, err := StaticToken("").Token(context.Background()); err == nil {
		t.Error("empty token should fail")
	}
	tok, err := StaticToken("abc").Token(context.Background())
	if err != nil || tok != "abc" {
		t.Errorf("Token() = %q, %v", tok, err)
	}
}

func TestManagedIdentity_FetchesAndCaches(t *testing.T) {
	calls := 0
	expires := time.Now().Add(time.Hour).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("X-IDENTITY-HEADER") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("resource") != DefaultResource {
			t.Errorf("resource = %q", r.URL.Query().Get("resource"))
		}
		if r.URL.Query().Get("api-version") != "2019-08-01" {
			t.Errorf("api-version = %q", r.URL.Query().Get("api-version"))
		}
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_on":"%d"}`, calls, expires)
	}))
	defer srv.Close()

	t.Setenv("IDENTITY_ENDPOINT", srv.URL)
	t.Setenv("IDENTITY_HEADER", "secret")
	mi, err := NewManagedIdentity("")
	if err != nil {
		t.Fatalf("NewManagedIdentity() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		tok, err := mi.Token(context.Background())
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if tok != "tok-1" {
			t.Errorf("Token() = %q, want cached tok-1", tok)
		}
	}
	if calls != 1 {
		t.Errorf("endpoint calls = %d, want 1", calls)
	}
}

func TestManagedIdentity_RefreshesNearExpiry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_on":"%d"}`, calls, time.Now().Add(2*time.Minute).Unix())
	}))
	defer srv.Close()

	mi := &ManagedIdentity{Endpoint: srv.URL, Header: "h", Resource: DefaultResource}
	mi.Token(context.Background())
	tok, _ := mi.Token(context.Background())
	if tok != "tok-2" {
		t.Errorf("token expiring within 5m should be refreshed, got %q", tok)
	}
}

func TestNewManagedIdentity_RequiresEnvironment(t *testing.T) {
	t.Setenv("IDENTITY_ENDPOINT", "")
	t.Setenv("IDENTITY_HEADER", "")
	if _, err := NewManagedIdentity(""); err != ErrNoIdentityEndpoint {
		t.Errorf("error = %v, want ErrNoIdentityEndpoint", err)
	}
}
