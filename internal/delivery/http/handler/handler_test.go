package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/user/webanalysis-engine/internal/delivery/http/handler"
	"github.com/user/webanalysis-engine/internal/delivery/http/router"
	"github.com/user/webanalysis-engine/internal/entity"
	"github.com/user/webanalysis-engine/internal/store"
	"github.com/user/webanalysis-engine/internal/usecase"
	"github.com/user/webanalysis-engine/pkg/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fakeRunManager struct {
	startErr error
	started  []string
}

func (f *fakeRunManager) Start(ctx context.Context, applicationID, seedURL string, cfg entity.Config, force bool) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, seedURL)
	return "run-123", nil
}

func (f *fakeRunManager) Status(ctx context.Context, runID string) (*usecase.RunStatus, error) {
	if runID != "run-123" {
		return nil, entity.ErrRunNotFound
	}
	return &usecase.RunStatus{RunID: runID, State: entity.RunRunning, Progress: 60}, nil
}

// seededStore returns a memory store holding one persisted run.
func seededStore(t *testing.T) store.Store {
	t.Helper()
	s := store.NewMemory()
	run := &entity.Run{ID: "run-123", SeedURL: "http://a.example/", State: entity.RunPending, CreatedAt: time.Now()}
	if err := s.CreateRun(context.Background(), run, entity.DefaultConfig()); err != nil {
		t.Fatal(err)
	}

	maps := entity.NewParentChildMaps("http://a.example/")
	maps.AddEdge("http://a.example/", "http://a.example/x")
	code := 200
	artifacts := store.Artifacts{
		Pages: []entity.PageRecord{
			{RunID: "run-123", URL: "http://a.example/", Title: "Seed", Type: entity.PageContent, Path: []string{"http://a.example/"}},
		},
		Edges: []entity.EdgeRecord{
			{RunID: "run-123", URL: "http://a.example/x", ParentURL: "http://a.example/", Type: entity.LinkStaticHTML, Status: entity.StatusValid, StatusCode: &code},
		},
		Maps:    maps,
		Bodies:  map[string]string{"http://a.example/": `<a href="http://a.example/x">x</a>`},
		Fetched: map[string]bool{"http://a.example/": true},
	}
	if err := s.PersistRun(context.Background(), "run-123", artifacts); err != nil {
		t.Fatal(err)
	}
	return s
}

func newServer(t *testing.T, mgr usecase.RunManager) http.Handler {
	t.Helper()
	return router.New(handler.NewHandler(mgr, seededStore(t), entity.DefaultConfig()))
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandleStartRun(t *testing.T) {
	srv := newServer(t, &fakeRunManager{})

	rr := doRequest(t, srv, http.MethodPost, "/api/v1/runs", `{"application_id":"app-1","url":"http://a.example/"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (body=%s)", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["run_id"] != "run-123" {
		t.Fatalf("expected run_id run-123, got %q", resp["run_id"])
	}
}

func TestHandleStartRunBadURL(t *testing.T) {
	srv := newServer(t, &fakeRunManager{})
	rr := doRequest(t, srv, http.MethodPost, "/api/v1/runs", `{"url":"not a url"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHandleStartRunRecentlyAnalyzed(t *testing.T) {
	srv := newServer(t, &fakeRunManager{startErr: &usecase.SeedRecentlyAnalyzedError{RunID: "run-prior"}})
	rr := doRequest(t, srv, http.MethodPost, "/api/v1/runs", `{"url":"http://a.example/"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["run_id"] != "run-prior" {
		t.Fatalf("expected conflict to name the prior run, got %q", resp["run_id"])
	}
}

func TestHandleStartRunInvalidConfig(t *testing.T) {
	srv := newServer(t, &fakeRunManager{startErr: &entity.ConfigValidationError{Violations: []string{"max_crawl_depth must be in [1,5], got 9"}}})
	rr := doRequest(t, srv, http.MethodPost, "/api/v1/runs", `{"url":"http://a.example/","config":{"max_crawl_depth":9}}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestHandleRunStatus(t *testing.T) {
	srv := newServer(t, &fakeRunManager{})

	rr := doRequest(t, srv, http.MethodGet, "/api/v1/runs/run-123/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/v1/runs/other/status", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHandleGetRunBundle(t *testing.T) {
	srv := newServer(t, &fakeRunManager{})

	rr := doRequest(t, srv, http.MethodGet, "/api/v1/runs/run-123", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", rr.Code, rr.Body.String())
	}

	var bundle struct {
		Pages []json.RawMessage `json:"pages"`
		Edges []json.RawMessage `json:"edges"`
		Maps  struct {
			ParentMap map[string]string `json:"parent_map"`
		} `json:"maps"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &bundle); err != nil {
		t.Fatal(err)
	}
	if len(bundle.Pages) != 1 || len(bundle.Edges) != 1 {
		t.Fatalf("expected 1 page and 1 edge, got %d/%d", len(bundle.Pages), len(bundle.Edges))
	}
	if bundle.Maps.ParentMap["http://a.example/x"] != "http://a.example/" {
		t.Fatalf("unexpected parent map: %v", bundle.Maps.ParentMap)
	}
}

func TestHandleGetSource(t *testing.T) {
	srv := newServer(t, &fakeRunManager{})

	// Leaf resolves from the seed via the parent walk.
	rr := doRequest(t, srv, http.MethodGet, "/api/v1/runs/run-123/source?url=http%3A%2F%2Fa.example%2Fx", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", rr.Code, rr.Body.String())
	}

	var src struct {
		ActualSourcePage   string `json:"actual_source_page"`
		IsSourceFromParent bool   `json:"is_source_from_parent"`
		HierarchyDepth     int    `json:"hierarchy_depth"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &src); err != nil {
		t.Fatal(err)
	}
	if !src.IsSourceFromParent || src.ActualSourcePage != "http://a.example/" || src.HierarchyDepth != 1 {
		t.Fatalf("unexpected source response: %+v", src)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/v1/runs/run-123/source?url=http%3A%2F%2Fa.example%2Fghost", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/v1/runs/run-123/source", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without url param, got %d", rr.Code)
	}
}

func TestHandleGetLinkDetail(t *testing.T) {
	srv := newServer(t, &fakeRunManager{})

	rr := doRequest(t, srv, http.MethodGet, "/api/v1/runs/run-123/link?url=http%3A%2F%2Fa.example%2Fx", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body=%s)", rr.Code, rr.Body.String())
	}

	var detail struct {
		ParentTitle string   `json:"parent_title"`
		Path        []string `json:"path"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.ParentTitle != "Seed" || len(detail.Path) != 2 {
		t.Fatalf("unexpected link detail: %+v", detail)
	}
}

func TestHandleDeleteRun(t *testing.T) {
	srv := newServer(t, &fakeRunManager{})

	rr := doRequest(t, srv, http.MethodDelete, "/api/v1/runs/run-123", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	rr = doRequest(t, srv, http.MethodGet, "/api/v1/runs/run-123", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestHandleHealthCheck(t *testing.T) {
	srv := newServer(t, &fakeRunManager{})
	rr := doRequest(t, srv, http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}
