package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spunwebtech/wayback-submitter/internal/archive"
	"github.com/spunwebtech/wayback-submitter/internal/config"
	"github.com/spunwebtech/wayback-submitter/internal/content"
	"github.com/spunwebtech/wayback-submitter/internal/policy"
	"github.com/spunwebtech/wayback-submitter/internal/store"
	storemem "github.com/spunwebtech/wayback-submitter/internal/store/memory"
	"github.com/spunwebtech/wayback-submitter/internal/submitter"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeIDGen struct{}

func (fakeIDGen) NewID() (string, error) { return "req-1", nil }

// fakeArchive backs both the orchestrator and the API-only client calls.
type fakeArchive struct {
	mu           sync.Mutex
	submitCount  int
	outcome      archive.Outcome
	testResult   archive.TestResult
	snapshot     *archive.Snapshot
	availability error
}

func (f *fakeArchive) Submit(context.Context, string, archive.Strategy, archive.Credentials) archive.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCount++
	return f.outcome
}

func (f *fakeArchive) TestConnection(context.Context, archive.Credentials) archive.TestResult {
	return f.testResult
}

func (f *fakeArchive) CheckAvailability(context.Context, string) (*archive.Snapshot, error) {
	return f.snapshot, f.availability
}

func (f *fakeArchive) submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCount
}

type testEnv struct {
	server   *Server
	store    *storemem.Store
	client   *fakeArchive
	registry *content.Registry
	clock    *fakeClock
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Config{}
	cfg.Archive.Method = config.MethodSimple
	cfg.Submit.Enabled = true
	cfg.Submit.ContentTypes = []string{"post", "page"}
	cfg.Submit.DedupWindowMin = 60
	cfg.Submit.RetryWindowHrs = 24
	cfg.Submit.RetryLimit = 10
	cfg.Submit.QueueSweepLimit = 50
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		store: storemem.New(),
		client: &fakeArchive{
			outcome: archive.Outcome{Success: true, StatusCode: 200, ArchiveURL: "https://web.archive.org/web/20240615103045/https://example.com/a"},
		},
		registry: content.NewRegistry(),
		clock:    &fakeClock{now: time.Date(2024, 6, 15, 10, 30, 45, 0, time.UTC)},
	}
	sub := submitter.New(submitter.Deps{
		Store:    env.store,
		Client:   env.client,
		Policy:   policy.New(nil),
		Source:   env.registry,
		Clock:    env.clock,
		Config:   cfg,
		Schedule: func(time.Duration, func()) {},
		Sleep:    func(time.Duration) {},
	})
	env.server = NewServer(env.store, sub, env.registry, env.client, fakeIDGen{}, env.clock, cfg, zap.NewNop())
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_PublishedEvent_Submits(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/v1/events/published",
		`{"content_id":7,"content_type":"post","status":"publish","url":"https://example.com/a","title":"Hello"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"disposition":"submitted"`)
	require.Equal(t, 1, env.client.submits())

	// The event also feeds the registry.
	item, ok := env.registry.Get(context.Background(), 7)
	require.True(t, ok)
	require.Equal(t, "Hello", item.Title)
}

func TestServer_PublishedEvent_DeferredReturnsAccepted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Submit.DelaySeconds = 300
	})
	rec := env.do(t, http.MethodPost, "/v1/events/published",
		`{"content_id":7,"content_type":"post","status":"publish","url":"https://example.com/a"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"disposition":"queued"`)
	require.Zero(t, env.client.submits())
}

func TestServer_PublishedEvent_Validation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/v1/events/published", "{invalid")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/events/published", `{"content_type":"post","url":"https://example.com/a"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "content_id required")

	rec = env.do(t, http.MethodPost, "/v1/events/published", `{"content_id":7,"content_type":"post"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "url required")
}

func TestServer_UpdatedEvent_RespectsToggle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/v1/events/updated",
		`{"content_id":7,"content_type":"post","status":"publish","url":"https://example.com/a"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"disposition":"skipped_policy"`)
	require.Zero(t, env.client.submits())
}

func TestServer_UnpublishedEvent_RemovesFromRegistry(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.registry.Put(archive.ContentItem{ID: 7, Type: "post", Status: "publish", URL: "https://example.com/a"})

	rec := env.do(t, http.MethodPost, "/v1/events/unpublished", `{"content_id":7}`)
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := env.registry.Get(context.Background(), 7)
	require.False(t, ok)
}

func TestServer_SubmitNow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.registry.Put(archive.ContentItem{ID: 5, Type: "post", Status: "publish", URL: "https://example.com/m"})

	rec := env.do(t, http.MethodPost, "/v1/content/5/submit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"success"`)

	rec = env.do(t, http.MethodPost, "/v1/content/404/submit", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/content/abc/submit", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ContentStatusAndHistory(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.registry.Put(archive.ContentItem{ID: 9, Type: "post", Status: "publish", URL: "https://example.com/h"})

	rec := env.do(t, http.MethodGet, "/v1/content/9/status", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/content/9/submit", "").Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/content/9/submit", "").Code)

	rec = env.do(t, http.MethodGet, "/v1/content/9/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"success"`)

	rec = env.do(t, http.MethodGet, "/v1/content/9/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Records []archive.SubmissionRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Records, 2)
}

func TestServer_ListSubmissions_FilterValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/submissions/", "").Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/submissions/?status=failed&limit=10&offset=5", "").Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/submissions/?status=bogus", "").Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/submissions/?limit=0", "").Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/submissions/?offset=-1", "").Code)
}

func TestServer_SubmissionStats(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.registry.Put(archive.ContentItem{ID: 1, Type: "post", Status: "publish", URL: "https://example.com/1"})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/content/1/submit", "").Code)

	rec := env.do(t, http.MethodGet, "/v1/submissions/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats archive.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, int64(1), stats.Total)
	require.Equal(t, int64(1), stats.Success)
}

func TestServer_ExportCSV(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.registry.Put(archive.ContentItem{ID: 1, Type: "post", Status: "publish", URL: "https://example.com/1", Title: "First Post"})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/content/1/submit", "").Code)

	rec := env.do(t, http.MethodGet, "/v1/submissions/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "wayback-submissions-2024-06-15.csv")
	require.Contains(t, rec.Body.String(), "title,source_url,archive_url,status,submitted_at")
	require.Contains(t, rec.Body.String(), "First Post")
	require.Contains(t, rec.Body.String(), "2024-06-15 10:30:45")
}

func TestServer_BatchSubmit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/v1/batch", `{"urls":["https://example.com/1","https://example.com/2"],"delay_seconds":0}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"batch_id":"req-1"`)
	require.Contains(t, rec.Body.String(), `"count":2`)

	// The batch runs in the background; records appear in the history.
	require.Eventually(t, func() bool {
		records, err := env.store.List(context.Background(), store.Filter{Limit: 10})
		return err == nil && len(records) == 2
	}, time.Second, 10*time.Millisecond)

	records, err := env.store.List(context.Background(), store.Filter{Limit: 10})
	require.NoError(t, err)
	for _, r := range records {
		require.Zero(t, r.ContentID)
		require.Equal(t, archive.StatusSuccess, r.Status)
	}

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/batch", `{"urls":[]}`).Code)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/batch", `{"urls":["https://example.com/1"],"delay_seconds":-5}`).Code)
}

func TestServer_TestCredentials(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	env.client.testResult = archive.TestResult{Success: true, Message: "Connection successful! Your API credentials are working."}

	rec := env.do(t, http.MethodPost, "/v1/credentials/test", `{"access_key":"AK","secret_key":"SK"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Connection successful")
}

func TestServer_CheckAvailability(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/availability", "").Code)

	rec := env.do(t, http.MethodGet, "/v1/availability?url=https://example.com/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":false`)

	env.client.snapshot = &archive.Snapshot{URL: "https://web.archive.org/web/20240101000000/https://example.com/a", Timestamp: "20240101000000", Status: "200"}
	rec = env.do(t, http.MethodGet, "/v1/availability?url=https://example.com/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":true`)
}

func TestServer_SubmissionCallback(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	pending, err := env.store.Append(context.Background(), store.Draft{
		ContentID:   3,
		SourceURL:   "https://example.com/p",
		Status:      archive.StatusPending,
		SubmittedAt: env.clock.Now(),
	})
	require.NoError(t, err)

	body := `{"record_id":` + jsonInt(pending.ID) + `,"status":"success","archive_url":"https://web.archive.org/web/x"}`
	rec := env.do(t, http.MethodPost, "/v1/callbacks/submission", body)
	require.Equal(t, http.StatusOK, rec.Code)

	updated, err := env.store.LatestFor(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, archive.StatusSuccess, updated.Status)

	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/callbacks/submission", `{"record_id":1,"status":"pending"}`).Code)
	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/v1/callbacks/submission", `{"record_id":9999,"status":"failed"}`).Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
		cfg.Auth.APIKey = "secret"
	})

	rec := env.do(t, http.MethodGet, "/v1/submissions/stats", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/submissions/stats", nil)
	req.Header.Set("X-API-Key", "secret")
	res := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	// Health endpoints stay open.
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code)
}

func TestServer_RequestIDHeader(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
