package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsResponse(cfg CORSConfig, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/v1/datasets", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	res := httptest.NewRecorder()
	CORS(cfg)(okHandler()).ServeHTTP(res, req)
	return res
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	res := corsResponse(CORSConfig{AllowedOrigins: []string{"*"}}, http.MethodGet, "https://buyer.example")
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
	if got := res.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("credentials header should be omitted, got %q", got)
	}
}

func TestCORSWildcardWithCredentialsEchoesOrigin(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true}
	res := corsResponse(cfg, http.MethodGet, "https://buyer.example")
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://buyer.example" {
		t.Fatalf("expected request origin to be echoed, got %q", got)
	}
	if got := res.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials to be allowed, got %q", got)
	}
	if got := res.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("expected Vary: Origin, got %q", got)
	}

	res = corsResponse(cfg, http.MethodGet, "")
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("no origin header should produce no CORS headers, got %q", got)
	}
}

func TestCORSExplicitOrigins(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://market.example"}}
	res := corsResponse(cfg, http.MethodOptions, "https://MARKET.example")
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected preflight to short-circuit, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://MARKET.example" {
		t.Fatalf("unexpected origin: %q", got)
	}

	res = corsResponse(cfg, http.MethodGet, "https://evil.example")
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin should not be allowed, got %q", got)
	}
	if res.Code != http.StatusOK {
		t.Fatalf("request should still be served, got %d", res.Code)
	}
}
