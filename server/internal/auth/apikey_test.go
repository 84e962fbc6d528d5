package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// passHandler answers 200 "ok".
var passHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
})

func callWithKey(t *testing.T, h http.Handler, header, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	if key != "" {
		req.Header.Set(header, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIKey(t *testing.T) {
	cases := []struct {
		name       string
		mode, key  string
		sentHeader string
		sentKey    string
		wantStatus int
	}{
		{"mode none passes through", "none", "secret", "X-API-Key", "", http.StatusOK},
		{"empty key passes through", "apikey", "", "X-API-Key", "", http.StatusOK},
		{"correct key passes", "apikey", "supersecret", "X-API-Key", "supersecret", http.StatusOK},
		{"wrong key rejected", "apikey", "supersecret", "X-API-Key", "wrong", http.StatusUnauthorized},
		{"missing header rejected", "apikey", "supersecret", "X-API-Key", "", http.StatusUnauthorized},
		{"other header rejected", "apikey", "supersecret", "X-Other", "supersecret", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := APIKey(tc.mode, "X-API-Key", tc.key)(passHandler)
			rec := callWithKey(t, h, tc.sentHeader, tc.sentKey)
			if rec.Code != tc.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestAPIKey_HeaderCaseInsensitive(t *testing.T) {
	h := APIKey("apikey", "x-api-key", "supersecret")(passHandler)
	if rec := callWithKey(t, h, "X-Api-Key", "supersecret"); rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}
}

func TestAPIKey_RejectionIsJSON(t *testing.T) {
	h := APIKey("apikey", "X-API-Key", "supersecret")(passHandler)
	rec := callWithKey(t, h, "X-API-Key", "nope")
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	if body := rec.Body.String(); body != `{"error":"invalid api key"}` {
		t.Errorf("body: got %q", body)
	}
}
