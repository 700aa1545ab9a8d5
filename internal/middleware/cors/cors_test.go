package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
	}{
		{"allowed origin", []string{"http://localhost:3000/"}, http.MethodGet, "http://LOCALHOST:3000", false, http.StatusTeapot, "http://LOCALHOST:3000"},
		{"foreign origin", []string{"http://localhost:3000"}, http.MethodGet, "http://evil.test", false, http.StatusTeapot, ""},
		{"wildcard", []string{"*"}, http.MethodGet, "http://any.test", false, http.StatusTeapot, "*"},
		{"preflight", []string{"http://a.test"}, http.MethodOptions, "http://a.test", true, http.StatusNoContent, "http://a.test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/api/budgets/1", nil)
			r.Header.Set("Origin", tt.origin)
			if tt.preflight {
				r.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			Middleware(tt.allowed)(next).ServeHTTP(rec, r)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}
