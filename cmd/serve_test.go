package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forumkita/marketpulse/internal/config"
	"github.com/forumkita/marketpulse/internal/model"
	"github.com/forumkita/marketpulse/internal/store"
)

// stubRunner completes instantly with a canned report.
type stubRunner struct {
	report *model.RunReport
	err    error
	done   chan struct{}
}

func (s *stubRunner) Run(ctx context.Context) (*model.RunReport, error) {
	if s.done != nil {
		defer close(s.done)
	}
	return s.report, s.err
}

// stubStore is a minimal in-memory store.Store for handler tests.
type stubStore struct {
	runs    map[string]*model.RunReport
	leases  []store.Lease
	listErr error
}

func newStubStore() *stubStore {
	return &stubStore{runs: map[string]*model.RunReport{}}
}

func (s *stubStore) SaveRun(ctx context.Context, r *model.RunReport) error {
	s.runs[r.ID] = r
	return nil
}

func (s *stubStore) GetRun(ctx context.Context, id string) (*model.RunReport, error) {
	return s.runs[id], nil
}

func (s *stubStore) ListRuns(ctx context.Context, f store.RunFilter) ([]model.RunReport, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.RunReport
	for _, r := range s.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (s *stubStore) AcquireLease(ctx context.Context, threadID, owner string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (s *stubStore) ReleaseLease(ctx context.Context, threadID, owner string) error { return nil }

func (s *stubStore) ListLeases(ctx context.Context) ([]store.Lease, error) { return s.leases, nil }

func (s *stubStore) DeleteExpiredLeases(ctx context.Context) (int, error) {
	n := len(s.leases)
	s.leases = nil
	return n, nil
}

func (s *stubStore) Migrate(ctx context.Context) error { return nil }

func (s *stubStore) Close() error { return nil }

func newTestServer(t *testing.T, runner analysisRunner, st store.Store) *httptest.Server {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	js := &jobServer{runner: runner, store: st, token: "secret"}
	srv := httptest.NewServer(js.router())
	t.Cleanup(srv.Close)
	return srv
}

func authedRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	return req
}

func TestServeHealthNoAuth(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, newStubStore())

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServeRejectsMissingToken(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, newStubStore())

	resp, err := http.Post(srv.URL+"/jobs/market-analysis", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeRejectsWrongToken(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, newStubStore())

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/runs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeTriggerAccepted(t *testing.T) {
	done := make(chan struct{})
	runner := &stubRunner{report: &model.RunReport{ID: "run-1"}, done: done}
	srv := newTestServer(t, runner, newStubStore())

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodPost, srv.URL+"/jobs/market-analysis"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run never started")
	}
}

func TestServeListRuns(t *testing.T) {
	st := newStubStore()
	st.runs["run-1"] = &model.RunReport{ID: "run-1", Processed: 3}
	srv := newTestServer(t, &stubRunner{}, st)

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/runs"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []model.RunReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestServeListRunsEmptyIsArray(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, newStubStore())

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/runs"))
	require.NoError(t, err)
	defer resp.Body.Close()

	var runs []model.RunReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&runs))
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestServeGetRunNotFound(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, newStubStore())

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/runs/missing"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeGetRun(t *testing.T) {
	st := newStubStore()
	st.runs["run-7"] = &model.RunReport{ID: "run-7", Failed: 1}
	srv := newTestServer(t, &stubRunner{}, st)

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/runs/run-7"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run model.RunReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, 1, run.Failed)
}

func TestServeListRunsError(t *testing.T) {
	st := newStubStore()
	st.listErr = eris.New("db down")
	srv := newTestServer(t, &stubRunner{}, st)

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/runs"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServeDeleteExpiredLeases(t *testing.T) {
	st := newStubStore()
	st.leases = []store.Lease{{ThreadID: "t1"}, {ThreadID: "t2"}}
	srv := newTestServer(t, &stubRunner{}, st)

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodDelete, srv.URL+"/leases/expired"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body["deleted"])
}
