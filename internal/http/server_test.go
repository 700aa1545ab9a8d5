package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/auth"
	"fintrack/internal/blob"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testAPI struct {
	srv    *Server
	repo   *storage.SQLiteRepository
	tokens *auth.TokenManager
}

func newTestAPI(t *testing.T, authRequired bool) *testAPI {
	t.Helper()
	dir := t.TempDir()

	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "fintrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	uploads := filepath.Join(dir, "uploads")
	pics, err := blob.NewLocalStore(uploads, "/uploads")
	require.NoError(t, err)

	tokens := auth.NewTokenManager("0123456789abcdef0123", "fintrack", time.Hour)
	summaries := cache.NewLRUCache[core.Summary](16, time.Minute)
	dashboards := cache.NewLRUCache[core.Dashboard](16, time.Minute)
	reports := services.NewReportService(repo, repo, summaries, dashboards, decimal.Zero)

	logCfg := applog.DefaultConfig()
	logCfg.Level = slog.LevelError
	logCfg.Output = io.Discard
	srv := NewServer(":0", Deps{
		Users:              services.NewUserService(repo, tokens, pics),
		Ledger:             services.NewLedgerService(repo, nil, reports),
		Budgets:            services.NewBudgetService(repo, nil, reports),
		Reports:            reports,
		Tokens:             tokens,
		DB:                 repo,
		Logger:             applog.New(logCfg),
		Caches:             map[string]StatsSource{"summaries": summaries, "dashboards": dashboards},
		UploadDir:          uploads,
		UploadMaxBytes:     1 << 16,
		AuthRequired:       authRequired,
		CORSOrigins:        []string{"http://localhost:3000"},
		RateLimitPerMinute: 10000,
	})
	t.Cleanup(func() { srv.limiter.Stop() })
	return &testAPI{srv: srv, repo: repo, tokens: tokens}
}

func (a *testAPI) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rr, req)
	return rr
}

// signup registers a user and returns its id and a fresh token.
func (a *testAPI) signup(t *testing.T, name string) (int64, string) {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/signup",
		fmt.Sprintf(`{"username":%q,"email":"%s@example.com","password":"pw-%s"}`, name, name, name), "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = a.do(t, http.MethodPost, "/login",
		fmt.Sprintf(`{"email":"%s@example.com","password":"pw-%s"}`, name, name), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	return int64(body["userId"].(float64)), body["token"].(string)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func decodeList(t *testing.T, rr *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func dec(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "expected decimal string, got %T", v)
	return decimal.RequireFromString(s)
}

func TestHealthReadyAndMetrics(t *testing.T) {
	api := newTestAPI(t, true)

	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		rr := api.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.Equal(t, want, rr.Body.String())
	}

	rr := api.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rr.Body.String(), "fintrack_http_requests_total 2")
	assert.Contains(t, rr.Body.String(), `fintrack_cache_hits_total{cache="summaries"} 0`)
}

func TestReadyFailsWhenDatabaseClosed(t *testing.T) {
	api := newTestAPI(t, true)
	require.NoError(t, api.repo.Close())

	rr := api.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "Database unavailable", decode(t, rr)["message"])
}

func TestSignupAndLogin(t *testing.T) {
	api := newTestAPI(t, true)

	rr := api.do(t, http.MethodPost, "/signup", `{"username":"alice","email":"alice@example.com","password":"pw"}`, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "User created successfully", body["message"])
	assert.NotZero(t, body["userId"])

	rr = api.do(t, http.MethodPost, "/signup", `{"username":"alice2","email":"ALICE@example.com","password":"pw"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Email already exists", decode(t, rr)["message"])

	rr = api.do(t, http.MethodPost, "/signup", `{"username":"","email":"bob@example.com","password":"pw"}`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "All fields are required", decode(t, rr)["message"])

	rr = api.do(t, http.MethodPost, "/login", `{"email":"alice@example.com","password":"pw"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body = decode(t, rr)
	assert.Equal(t, "Login successful", body["message"])
	assert.Equal(t, "alice", body["username"])
	assert.NotEmpty(t, body["token"])

	for _, creds := range []string{
		`{"email":"alice@example.com","password":"wrong"}`,
		`{"email":"nobody@example.com","password":"pw"}`,
	} {
		rr = api.do(t, http.MethodPost, "/login", creds, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Invalid email or password", decode(t, rr)["message"])
	}

	rr = api.do(t, http.MethodPost, "/login", `{"email":`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request body", decode(t, rr)["message"])
}

func TestAuthGuard(t *testing.T) {
	api := newTestAPI(t, true)
	alice, aliceToken := api.signup(t, "alice")
	bob, _ := api.signup(t, "bob")

	rr := api.do(t, http.MethodGet, fmt.Sprintf("/api/user/%d", alice), "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Unauthorized", decode(t, rr)["message"])

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/api/user/%d", alice), "", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/api/transactions/%d", bob), "", aliceToken)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/api/user/%d", alice), "", aliceToken)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, "", body["profile_pic"])
	assert.NotContains(t, body, "password")
}

func TestAuthDisabled(t *testing.T) {
	api := newTestAPI(t, false)
	alice, _ := api.signup(t, "alice")

	rr := api.do(t, http.MethodGet, fmt.Sprintf("/api/user/%d", alice), "", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = api.do(t, http.MethodGet, "/api/user/999", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "User not found", decode(t, rr)["message"])

	rr = api.do(t, http.MethodGet, "/api/user/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid user id", decode(t, rr)["message"])
}

func TestTransactionLifecycle(t *testing.T) {
	api := newTestAPI(t, true)
	uid, token := api.signup(t, "alice")
	base := fmt.Sprintf("/api/transactions/%d", uid)

	rr := api.do(t, http.MethodPost, base, `{"type":"expense","category":" Food ","amount":12.5,"date":"2024-05-01","description":"lunch"}`, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.Equal(t, "Transaction added successfully", body["message"])
	created := body["transaction"].(map[string]any)
	assert.Equal(t, "food", created["category"])
	assert.True(t, dec(t, created["amount"]).Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "2024-05-01", created["date"])
	id := int64(created["id"].(float64))

	rr = api.do(t, http.MethodPost, base, `{"type":"income","category":"salary","amount":"2000","date":"2024-05-03"}`, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = api.do(t, http.MethodPost, base, `{"type":"expense","category":"rent","amount":"800","date":"2024-04-01"}`, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = api.do(t, http.MethodGet, base, "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeList(t, rr)
	require.Len(t, list, 3)
	assert.Equal(t, "salary", list[0]["category"])
	assert.Equal(t, "rent", list[2]["category"])

	rr = api.do(t, http.MethodGet, base+"?month=2024-05&type=expense", "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	list = decodeList(t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "food", list[0]["category"])

	rr = api.do(t, http.MethodGet, base+"?month=May", "", token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, http.MethodPut, fmt.Sprintf("%s/%d", base, id), `{"type":"expense","category":"food","amount":"15","date":"2024-05-02","description":"dinner"}`, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode(t, rr)["transaction"].(map[string]any)
	assert.Equal(t, "dinner", updated["description"])
	assert.True(t, dec(t, updated["amount"]).Equal(decimal.NewFromInt(15)))

	rr = api.do(t, http.MethodPut, base+"/9999", `{"type":"expense","category":"food","amount":"15","date":"2024-05-02"}`, token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Transaction not found", decode(t, rr)["message"])

	rr = api.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, id), "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Transaction deleted successfully", decode(t, rr)["message"])

	rr = api.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, id), "", token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateTransactionValidation(t *testing.T) {
	api := newTestAPI(t, false)
	uid, _ := api.signup(t, "alice")
	path := fmt.Sprintf("/api/transactions/%d", uid)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing amount", `{"type":"expense","category":"food","date":"2024-05-01"}`, "All fields are required"},
		{"empty body", `{}`, "All fields are required"},
		{"bad type", `{"type":"gift","category":"food","amount":"1","date":"2024-05-01"}`, "Type must be income or expense"},
		{"bad amount", `{"type":"expense","category":"food","amount":"abc","date":"2024-05-01"}`, "Amount must be a non-negative number"},
		{"zero amount", `{"type":"expense","category":"food","amount":0,"date":"2024-05-01"}`, "Amount must be a non-negative number"},
		{"bad date", `{"type":"expense","category":"food","amount":"1","date":"01/05/2024"}`, "Date must be formatted as YYYY-MM-DD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(t, http.MethodPost, path, tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.want, decode(t, rr)["message"])
		})
	}
}

func TestFormEncodedTransaction(t *testing.T) {
	api := newTestAPI(t, false)
	uid, _ := api.signup(t, "alice")

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/transactions/%d", uid),
		strings.NewReader("type=income&category=salary&amount=100%2C50&date=2024-05-01"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	api.srv.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode(t, rr)["transaction"].(map[string]any)
	assert.True(t, dec(t, created["amount"]).Equal(decimal.RequireFromString("100.5")))
}

func TestExportTransactions(t *testing.T) {
	api := newTestAPI(t, true)
	uid, token := api.signup(t, "alice")
	base := fmt.Sprintf("/api/transactions/%d", uid)

	api.do(t, http.MethodPost, base, `{"type":"expense","category":"food","amount":"12.5","date":"2024-05-01","description":"lunch, with team"}`, token)
	api.do(t, http.MethodPost, base, `{"type":"income","category":"salary","amount":"2000","date":"2024-06-01"}`, token)

	rr := api.do(t, http.MethodGet, base+"/export?month=2024-05", "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment; filename=\"transactions-")
	assert.Equal(t, "1", rr.Header().Get("X-Row-Count"))

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,date,type,category,amount,description", lines[0])
	assert.Contains(t, lines[1], `2024-05-01,expense,food,12.50,"lunch, with team"`)
}

func TestBudgetsAndTotalBudget(t *testing.T) {
	api := newTestAPI(t, true)
	uid, token := api.signup(t, "alice")
	base := fmt.Sprintf("/api/budgets/%d", uid)

	rr := api.do(t, http.MethodPost, base, `{"category":"Food","amount":"1000"}`, token)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	budget := decode(t, rr)["budget"].(map[string]any)
	assert.Equal(t, "food", budget["category"])
	id := int64(budget["id"].(float64))

	rr = api.do(t, http.MethodPost, base, `{"category":"","amount":"10"}`, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = api.do(t, http.MethodPut, fmt.Sprintf("%s/%d", base, id), `{"category":"food","amount":1200}`, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, dec(t, decode(t, rr)["budget"].(map[string]any)["amount"]).Equal(decimal.NewFromInt(1200)))

	rr = api.do(t, http.MethodGet, base, "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeList(t, rr), 1)

	totalPath := fmt.Sprintf("/api/totalBudget/%d", uid)
	rr = api.do(t, http.MethodGet, totalPath, "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, dec(t, decode(t, rr)["totalBudget"]).IsZero())

	rr = api.do(t, http.MethodPost, totalPath, `{"totalBudget":"1800,25"}`, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = api.do(t, http.MethodGet, totalPath, "", token)
	assert.True(t, dec(t, decode(t, rr)["totalBudget"]).Equal(decimal.RequireFromString("1800.25")))

	rr = api.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, id), "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = api.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, id), "", token)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Budget not found", decode(t, rr)["message"])
}

func TestSummaryNotificationsAndDashboard(t *testing.T) {
	api := newTestAPI(t, true)
	uid, token := api.signup(t, "alice")
	tx := fmt.Sprintf("/api/transactions/%d", uid)

	api.do(t, http.MethodPost, tx, `{"type":"income","category":"salary","amount":"2000","date":"2024-05-01"}`, token)
	api.do(t, http.MethodPost, tx, `{"type":"expense","category":"food","amount":"900","date":"2024-05-02"}`, token)
	api.do(t, http.MethodPost, fmt.Sprintf("/api/budgets/%d", uid), `{"category":"food","amount":"1000"}`, token)

	rr := api.do(t, http.MethodGet, fmt.Sprintf("/api/summary/%d?month=2024-05", uid), "", token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	summary := decode(t, rr)
	assert.Equal(t, "2024-05", summary["period"])
	assert.True(t, dec(t, summary["totalIncome"]).Equal(decimal.NewFromInt(2000)))
	assert.True(t, dec(t, summary["netBalance"]).Equal(decimal.NewFromInt(1100)))
	budgets := summary["budgets"].([]any)
	require.Len(t, budgets, 1)
	assert.True(t, dec(t, budgets[0].(map[string]any)["percent"]).Equal(decimal.NewFromInt(90)))

	// A new transaction invalidates the cached summary.
	api.do(t, http.MethodPost, tx, `{"type":"expense","category":"food","amount":"200","date":"2024-05-03"}`, token)
	rr = api.do(t, http.MethodGet, fmt.Sprintf("/api/summary/%d?month=2024-05", uid), "", token)
	assert.True(t, dec(t, decode(t, rr)["totalExpense"]).Equal(decimal.NewFromInt(1100)))

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/api/summary/%d?month=all", uid), "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, decode(t, rr), "period")

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/api/summary/%d?month=2024-13", uid), "", token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Month must be formatted as YYYY-MM", decode(t, rr)["message"])

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/api/notifications/%d?month=2024-05", uid), "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	notes := decodeList(t, rr)
	require.NotEmpty(t, notes)
	assert.Equal(t, "danger", notes[0]["severity"])

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/api/notifications/%d?month=2023-01", uid), "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/api/dashboard/%d", uid), "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	dash := decode(t, rr)
	require.Len(t, dash["trend"].([]any), 1)
	assert.True(t, dec(t, dash["netBalance"]).Equal(decimal.NewFromInt(900)))
}

func TestReportPercentagesRoundedInResponses(t *testing.T) {
	api := newTestAPI(t, false)
	uid, _ := api.signup(t, "alice")
	tx := fmt.Sprintf("/api/transactions/%d", uid)

	api.do(t, http.MethodPost, tx, `{"type":"income","category":"salary","amount":"3","date":"2024-05-01"}`, "")
	api.do(t, http.MethodPost, tx, `{"type":"expense","category":"food","amount":"1","date":"2024-05-02"}`, "")
	api.do(t, http.MethodPost, fmt.Sprintf("/api/budgets/%d", uid), `{"category":"food","amount":"3"}`, "")

	rr := api.do(t, http.MethodGet, fmt.Sprintf("/api/summary/%d?month=2024-05", uid), "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	summary := decode(t, rr)
	assert.Equal(t, "66.67", summary["healthScore"])
	assert.Equal(t, "33.33", summary["spendingPercent"])
	assert.Equal(t, "33.33", summary["budgets"].([]any)[0].(map[string]any)["percent"])

	rr = api.do(t, http.MethodGet, fmt.Sprintf("/api/dashboard/%d", uid), "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "66.67", decode(t, rr)["healthScore"])
}

func TestUpdateProfileWithPicture(t *testing.T) {
	api := newTestAPI(t, true)
	uid, token := api.signup(t, "alice")
	path := fmt.Sprintf("/api/user/%d", uid)

	rr := api.do(t, http.MethodPut, path, `{}`, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "No valid fields to update", decode(t, rr)["message"])

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("username", "alice-b"))
	fw, err := mw.CreateFormFile(profilePicField, "me.png")
	require.NoError(t, err)
	_, err = fw.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	api.srv.Handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	user := decode(t, rr)["user"].(map[string]any)
	assert.Equal(t, "alice-b", user["username"])
	url, _ := user["profile_pic_url"].(string)
	require.True(t, strings.HasPrefix(url, "/uploads/avatars/"), url)

	rr = api.do(t, http.MethodGet, url, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "public, max-age=3600", rr.Header().Get("Cache-Control"))
	assert.Equal(t, pngHeader, rr.Body.Bytes())

	rr = api.do(t, http.MethodGet, "/uploads/avatars/", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateProfileRejectsNonImage(t *testing.T) {
	api := newTestAPI(t, false)
	uid, _ := api.signup(t, "alice")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(profilePicField, "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("just some text"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/api/user/%d", uid), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	api.srv.Handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Profile picture must be a PNG, JPEG, GIF or WebP image", decode(t, rr)["message"])
}

func TestRouterFallbacksAndMiddleware(t *testing.T) {
	api := newTestAPI(t, false)

	rr := api.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Not found", decode(t, rr)["message"])
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = api.do(t, http.MethodGet, "/signup", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = api.do(t, http.MethodGet, "/.env", "", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/budgets/1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	api.srv.Handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimitReturnsJSON(t *testing.T) {
	api := newTestAPI(t, false)
	api.srv.limiter.Stop()
	api.srv = NewServer(":0", Deps{
		Users:              api.srv.deps.Users,
		Ledger:             api.srv.deps.Ledger,
		Budgets:            api.srv.deps.Budgets,
		Reports:            api.srv.deps.Reports,
		Logger:             api.srv.deps.Logger,
		RateLimitPerMinute: 2,
	})
	t.Cleanup(func() { api.srv.limiter.Stop() })

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/missing", "", "").Code)
	}
	rr := api.do(t, http.MethodGet, "/missing", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Contains(t, decode(t, rr)["message"], "Rate limit exceeded")

	// Probes stay reachable for a throttled client.
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/healthz", "", "").Code)
}

func TestRateLimitKeysOnForwardedClientBehindTrustedProxy(t *testing.T) {
	api := newTestAPI(t, false)
	api.srv.limiter.Stop()
	api.srv = NewServer(":0", Deps{
		Users:              api.srv.deps.Users,
		Ledger:             api.srv.deps.Ledger,
		Budgets:            api.srv.deps.Budgets,
		Reports:            api.srv.deps.Reports,
		Logger:             api.srv.deps.Logger,
		RateLimitPerMinute: 1,
		// httptest requests come from 192.0.2.1
		TrustedProxies: []string{"192.0.2.0/24", "not-a-cidr"},
	})
	t.Cleanup(func() { api.srv.limiter.Stop() })

	from := func(client string) int {
		req := httptest.NewRequest(http.MethodGet, "/missing", nil)
		req.Header.Set("X-Forwarded-For", client+", 192.0.2.1")
		rr := httptest.NewRecorder()
		api.srv.Handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusNotFound, from("203.0.113.5"))
	assert.Equal(t, http.StatusNotFound, from("203.0.113.6"), "each forwarded client has its own bucket")
	assert.Equal(t, http.StatusTooManyRequests, from("203.0.113.5"))
}

func TestShutdownIsIdempotent(t *testing.T) {
	api := newTestAPI(t, false)
	require.NoError(t, api.srv.Shutdown(context.Background()))
	require.NoError(t, api.srv.Shutdown(context.Background()))
}
