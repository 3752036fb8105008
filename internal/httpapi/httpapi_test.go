package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mfenderov/multichat/internal/chat"
	"github.com/mfenderov/multichat/internal/scan"
	"github.com/mfenderov/multichat/pkg/models"
)

type fakeChat struct {
	lastReq chat.Request
	lastCtx context.Context
	err     error
}

func (f *fakeChat) Ask(ctx context.Context, req chat.Request) (chat.Result, error) {
	f.lastReq = req
	f.lastCtx = ctx
	if f.err != nil {
		return chat.Result{}, f.err
	}
	return chat.Result{Message: "We are open 9 to 6.", Language: "en"}, nil
}

type fakeScans struct {
	lastReq scan.Request
	err     error
}

func (f *fakeScans) Run(_ context.Context, req scan.Request) (*scan.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &scan.Result{ID: "run-1", Language: "en", Pages: 2, Chunks: 5, Failed: []string{"https://example.com/x"}, Saved: true}, nil
}

type fakeResponses struct{ cleared int }

func (f *fakeResponses) ClearCache(context.Context) (int, error) {
	f.cleared++
	return 4, nil
}

type fakeKnowledge struct {
	snaps        map[string]*models.Snapshot
	clearedLangs []string
}

func (f *fakeKnowledge) Load(_ context.Context, language string) (*models.Snapshot, bool, error) {
	snap, ok := f.snaps[language]
	return snap, ok, nil
}

func (f *fakeKnowledge) Clear(_ context.Context, language string) (int, error) {
	f.clearedLangs = append(f.clearedLangs, language)
	return 1, nil
}

type env struct {
	router    http.Handler
	chat      *fakeChat
	scans     *fakeScans
	responses *fakeResponses
	knowledge *fakeKnowledge
}

func testEnv(t *testing.T, adminToken string) *env {
	t.Helper()
	e := &env{
		chat:      &fakeChat{},
		scans:     &fakeScans{},
		responses: &fakeResponses{},
		knowledge: &fakeKnowledge{snaps: map[string]*models.Snapshot{
			"en": {
				Chunks:     []models.Chunk{{Text: "Open 9 to 6."}},
				SourceURLs: []models.SourceRef{{URL: "https://example.com/hours", Title: "Hours"}},
				Metadata:   models.SnapshotMetadata{TotalPages: 1, TotalChunks: 1, ScannedAt: time.Now().Add(-time.Hour)},
			},
		}},
	}
	e.router = NewRouter(Deps{
		Chat:      e.chat,
		Scans:     e.scans,
		Responses: e.responses,
		Knowledge: e.knowledge,
	}, Config{AdminToken: adminToken, UserHeader: "X-User-ID"})
	return e
}

func postAsk(t *testing.T, h http.Handler, body string, headers map[string]string) (*httptest.ResponseRecorder, AskResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:4321"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp AskResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %s", w.Body.String())
	}
	return w, resp
}

func TestAsk_Success(t *testing.T) {
	e := testEnv(t, "")

	w, resp := postAsk(t, e.router, `{"message":"When are you open?","language":"en"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !resp.Success || resp.Message != "We are open 9 to 6." {
		t.Errorf("response = %+v", resp)
	}
	if e.chat.lastReq.Message != "When are you open?" || e.chat.lastReq.Language != "en" {
		t.Errorf("chat request = %+v", e.chat.lastReq)
	}
	if !strings.HasPrefix(e.chat.lastReq.Identity, "ip:") {
		t.Errorf("Identity = %q, want an ip identity", e.chat.lastReq.Identity)
	}
}

func TestAsk_UserHeaderIdentity(t *testing.T) {
	e := testEnv(t, "")
	postAsk(t, e.router, `{"message":"hi"}`, map[string]string{"X-User-ID": "42"})
	if e.chat.lastReq.Identity != "user:42" {
		t.Errorf("Identity = %q, want user:42", e.chat.lastReq.Identity)
	}
}

func TestAsk_AcceptLanguageReachesResolver(t *testing.T) {
	e := testEnv(t, "")
	postAsk(t, e.router, `{"message":"bonjour"}`, map[string]string{"Accept-Language": "fr-FR"})

	resolver := chat.AcceptLanguageResolver{Supported: []string{"en", "fr"}, Fallback: "en"}
	if got := resolver.Resolve(e.chat.lastCtx, ""); got != "fr" {
		t.Errorf("resolved language = %q, want fr", got)
	}
}

func TestAsk_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantRetry  string
	}{
		{"validation", &chat.Error{Kind: chat.KindValidation, Status: http.StatusBadRequest, Message: "Message cannot be empty."}, http.StatusBadRequest, ""},
		{"rate limited", &chat.Error{Kind: chat.KindRateLimited, Status: http.StatusTooManyRequests, Message: "Rate limit exceeded. Please try again in 42 seconds.", RetryAfter: 42}, http.StatusTooManyRequests, "42"},
		{"missing credential", &chat.Error{Kind: chat.KindMissingCredential, Status: http.StatusInternalServerError, Message: "The chat service is not configured."}, http.StatusInternalServerError, ""},
		{"upstream", &chat.Error{Kind: chat.KindUpstream, Status: http.StatusInternalServerError, Message: "Incorrect API key provided"}, http.StatusInternalServerError, ""},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEnv(t, "")
			e.chat.err = tt.err

			w, resp := postAsk(t, e.router, `{"message":"hi"}`, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp.Success || resp.Message == "" {
				t.Errorf("response = %+v", resp)
			}
			if strings.Contains(resp.Message, "boom") {
				t.Error("unclassified errors must not leak")
			}
			if got := w.Header().Get("Retry-After"); got != tt.wantRetry {
				t.Errorf("Retry-After = %q, want %q", got, tt.wantRetry)
			}
		})
	}
}

func TestAsk_InvalidBody(t *testing.T) {
	e := testEnv(t, "")
	w, resp := postAsk(t, e.router, `{"message":`, nil)
	if w.Code != http.StatusBadRequest || resp.Success {
		t.Errorf("status = %d, response = %+v", w.Code, resp)
	}
	if e.chat.lastCtx != nil {
		t.Error("chat service should not be called")
	}
}

func TestHealth(t *testing.T) {
	e := testEnv(t, "")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_ServesOverHTTP(t *testing.T) {
	e := testEnv(t, "")
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/ask", "application/json", strings.NewReader(`{"message":"hours?"}`))
	if err != nil {
		t.Fatalf("POST /ask: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("content type = %q", got)
	}
	var body AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Message != "We are open 9 to 6." {
		t.Errorf("body = %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := testEnv(t, "")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("metrics = %d", w.Code)
	}
}

func adminRequest(method, target, token string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAdmin_NotMountedWithoutToken(t *testing.T) {
	e := testEnv(t, "")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, adminRequest(http.MethodPost, "/admin/scan", "", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestAdmin_Auth(t *testing.T) {
	e := testEnv(t, "secret123")

	for _, token := range []string{"", "wrong"} {
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, adminRequest(http.MethodDelete, "/admin/cache/responses", token, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, w.Code)
		}
	}
	if e.responses.cleared != 0 {
		t.Error("unauthorized requests must not clear the cache")
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, adminRequest(http.MethodDelete, "/admin/cache/responses", "secret123", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"removed":4`) {
		t.Errorf("clear responses = %d %s", w.Code, w.Body.String())
	}
}

func TestAdmin_Scan(t *testing.T) {
	e := testEnv(t, "secret123")

	body := []byte(`{"sitemap_url":"https://example.com/sitemap.xml","language":"fr","post_types":["page"]}`)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, adminRequest(http.MethodPost, "/admin/scan", "secret123", body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if e.scans.lastReq.Language != "fr" || e.scans.lastReq.PostTypes[0] != "page" {
		t.Errorf("scan request = %+v", e.scans.lastReq)
	}

	var res scan.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Pages != 2 || res.Chunks != 5 || len(res.Failed) != 1 {
		t.Errorf("result = %+v", res)
	}

	// empty body uses configured defaults
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, adminRequest(http.MethodPost, "/admin/scan", "secret123", nil))
	if w.Code != http.StatusOK {
		t.Errorf("empty body status = %d", w.Code)
	}
}

func TestAdmin_ScanErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"bad url", `{"sitemap_url":"not a url"}`, nil, http.StatusBadRequest},
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"no sitemap", `{}`, scan.ErrNoSitemap, http.StatusBadRequest},
		{"in progress", `{}`, scan.ErrInProgress, http.StatusConflict},
		{"sitemap down", `{}`, errors.New("failed to scan sitemap: status 500"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEnv(t, "secret123")
			e.scans.err = tt.err
			w := httptest.NewRecorder()
			e.router.ServeHTTP(w, adminRequest(http.MethodPost, "/admin/scan", "secret123", []byte(tt.body)))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAdmin_Knowledge(t *testing.T) {
	e := testEnv(t, "secret123")

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, adminRequest(http.MethodGet, "/admin/knowledge", "secret123", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var status KnowledgeStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Language != "en" || status.Metadata.TotalChunks != 1 || len(status.SourceURLs) != 1 {
		t.Errorf("status = %+v", status)
	}

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, adminRequest(http.MethodGet, "/admin/knowledge?language=ar", "secret123", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing language status = %d, want 404", w.Code)
	}

	for _, target := range []string{"/admin/cache/knowledge?language=FR", "/admin/cache/knowledge"} {
		w = httptest.NewRecorder()
		e.router.ServeHTTP(w, adminRequest(http.MethodDelete, target, "secret123", nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", target, w.Code)
		}
	}
	if len(e.knowledge.clearedLangs) != 2 || e.knowledge.clearedLangs[0] != "fr" || e.knowledge.clearedLangs[1] != "" {
		t.Errorf("cleared = %v", e.knowledge.clearedLangs)
	}
}
