package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err != nil {
		t.Fatalf("zero config err=%v", err)
	}
	if err := (Config{Mode: ModeToken}).Validate(); err == nil {
		t.Fatalf("expected token required")
	}
	if err := (Config{Mode: ModeOIDC, OIDCIssuerURL: "https://issuer"}).Validate(); err == nil {
		t.Fatalf("expected client id required")
	}
	if err := (Config{Mode: "basic"}).Validate(); err == nil {
		t.Fatalf("expected unknown mode to be rejected")
	}
}

func TestHTTPClientToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := HTTPClient(context.Background(), Config{Mode: ModeToken, Token: "secret"}, srv.Client())
	if err != nil {
		t.Fatalf("HTTPClient() err=%v", err)
	}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if got != "Bearer secret" {
		t.Fatalf("Authorization=%q", got)
	}
}

func TestHTTPClientNoneReturnsBase(t *testing.T) {
	base := &http.Client{}
	client, err := HTTPClient(context.Background(), Config{}, base)
	if err != nil {
		t.Fatalf("HTTPClient() err=%v", err)
	}
	if client != base {
		t.Fatalf("expected base client for mode none")
	}
}
