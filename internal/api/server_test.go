package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"rawlabel/internal/api"
	"rawlabel/internal/assetstore"
	"rawlabel/internal/services"
	"rawlabel/internal/testsupport"
)

type fakePreviews struct {
	mu    sync.Mutex
	calls []string
	data  []byte
	err   error
}

func (f *fakePreviews) GetPreview(_ context.Context, sourceID string, kind assetstore.Kind) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, string(kind)+":"+sourceID)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fixture struct {
	handler  http.Handler
	previews *fakePreviews
	root     string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenAnnotationStore(t, cfg)
	previews := &fakePreviews{data: []byte{0xff, 0xd8, 0xff, 0xd9}}
	srv, err := api.NewServer(api.Options{
		DataRoot:    cfg.Paths.DataRoot,
		Annotations: store,
		Previews:    previews,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return fixture{handler: srv, previews: previews, root: cfg.Paths.DataRoot}
}

func (f fixture) do(t *testing.T, method, target, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &payload)
	if user != "" {
		req.Header.Set("X-User", user)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthSetsRequestID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}
	if resp := decode[api.HealthResponse](t, w); resp.Status != "ok" {
		t.Fatalf("unexpected health %+v", resp)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected incoming request id echoed, got %q", got)
	}
}

func TestProposeVoteAndConsensus(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/proposals", "alice", api.ProposeRequest{Source: "DSC0001.ARW", Key: "make", Value: "Sony"})
	if w.Code != http.StatusOK {
		t.Fatalf("propose: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	proposal := decode[api.ProposeResponse](t, w)
	if proposal.ID == 0 {
		t.Fatal("expected proposal id")
	}

	w = f.do(t, http.MethodPost, "/api/proposals/"+itoa(proposal.ID)+"/votes", "bob", map[string]int{"weight": 1})
	if w.Code != http.StatusNoContent {
		t.Fatalf("vote: expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/consensus?source=DSC0001.ARW&key=make", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("consensus: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	consensus := decode[api.Consensus](t, w)
	if consensus.Value != "sony" || consensus.Score != 2 {
		t.Fatalf("unexpected consensus %+v", consensus)
	}

	w = f.do(t, http.MethodGet, "/api/proposals?source=DSC0001.ARW&key=make", "", nil)
	list := decode[api.ProposalListResponse](t, w)
	if len(list.Proposals) != 1 || len(list.Proposals[0].Votes) != 1 || list.Proposals[0].Votes[0].Voter != "bob" {
		t.Fatalf("unexpected proposals %+v", list)
	}
	if list.Source != filepath.Join(f.root, "DSC0001.ARW") {
		t.Fatalf("expected source resolved under data root, got %q", list.Source)
	}

	w = f.do(t, http.MethodGet, "/api/images/annotations?source=DSC0001.ARW", "", nil)
	annotations := decode[api.AnnotationsResponse](t, w)
	if annotations.Annotations["make"].Value != "sony" {
		t.Fatalf("unexpected annotations %+v", annotations)
	}

	w = f.do(t, http.MethodGet, "/api/values?key=make&prefix=so", "", nil)
	values := decode[api.ValuesResponse](t, w)
	if len(values.Values) != 1 || values.Values[0] != "sony" {
		t.Fatalf("unexpected values %+v", values)
	}

	w = f.do(t, http.MethodGet, "/api/images?order_by=-filename", "", nil)
	images := decode[api.ImageListResponse](t, w)
	if images.Total != 1 || images.Images[0].Annotations["make"] != "sony" {
		t.Fatalf("unexpected images %+v", images)
	}

	w = f.do(t, http.MethodDelete, "/api/proposals?source=DSC0001.ARW&key=make", "alice", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("withdraw: expected 204, got %d: %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodGet, "/api/consensus?source=DSC0001.ARW&key=make", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after withdrawal, got %d", w.Code)
	}
	if resp := decode[api.ErrorResponse](t, w); resp.Kind != "no_consensus" || resp.RequestID == "" {
		t.Fatalf("unexpected error body %+v", resp)
	}
}

func TestMutationsRequirePrincipal(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		method string
		target string
		body   any
	}{
		{http.MethodPost, "/api/proposals", api.ProposeRequest{Source: "a.arw", Key: "make", Value: "sony"}},
		{http.MethodDelete, "/api/proposals?source=a.arw&key=make", nil},
		{http.MethodPost, "/api/proposals/1/votes", map[string]int{"weight": 1}},
	}
	for _, tc := range cases {
		w := f.do(t, tc.method, tc.target, "", tc.body)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", tc.method, tc.target, w.Code)
		}
	}
}

func TestErrorStatusMapping(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"unknown key", http.MethodGet, "/api/consensus?source=a.arw&key=lens", nil, http.StatusBadRequest},
		{"missing source", http.MethodGet, "/api/proposals?key=make", nil, http.StatusBadRequest},
		{"escape data root", http.MethodGet, "/api/images/annotations?source=../etc/passwd", nil, http.StatusBadRequest},
		{"absolute outside root", http.MethodGet, "/api/images/preview?source=/etc/passwd", nil, http.StatusBadRequest},
		{"bad search json", http.MethodGet, "/api/images?search=" + url.QueryEscape("{"), nil, http.StatusBadRequest},
		{"unknown sort", http.MethodGet, "/api/images?order_by=lens", nil, http.StatusBadRequest},
		{"numeric substring", http.MethodGet, "/api/images?search=" + url.QueryEscape(`{"id":"abc"}`), nil, http.StatusBadRequest},
		{"bad page token", http.MethodGet, "/api/images?page_token=zzz", nil, http.StatusBadRequest},
		{"vote missing proposal", http.MethodPost, "/api/proposals/99/votes", map[string]int{"weight": 1}, http.StatusNotFound},
		{"vote out of range", http.MethodPost, "/api/proposals/1/votes", map[string]int{"weight": 5}, http.StatusBadRequest},
		{"vote without weight", http.MethodPost, "/api/proposals/1/votes", map[string]string{}, http.StatusBadRequest},
		{"vote bad id", http.MethodPost, "/api/proposals/x/votes", map[string]int{"weight": 1}, http.StatusBadRequest},
		{"withdraw absent", http.MethodDelete, "/api/proposals?source=a.arw&key=make", nil, http.StatusNotFound},
		{"unknown body field", http.MethodPost, "/api/proposals", map[string]string{"source": "a.arw", "key": "make", "label": "x"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := f.do(t, tc.method, tc.target, "carol", tc.body)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.want, w.Code, w.Body.String())
		}
	}
}

func TestPreviewServesBytes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/images/preview?source=DSC0002.ARW&kind=thumbnail", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), f.previews.data) {
		t.Fatal("unexpected body")
	}
	want := "thumbnail:" + filepath.Join(f.root, "DSC0002.ARW")
	if len(f.previews.calls) != 1 || f.previews.calls[0] != want {
		t.Fatalf("unexpected preview calls %v", f.previews.calls)
	}

	if w := f.do(t, http.MethodGet, "/api/images/preview?source=DSC0002.ARW&kind=poster", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", w.Code)
	}
}

func TestPreviewErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{services.ErrNoPreviewAvailable, http.StatusUnprocessableEntity},
		{services.Wrap(services.ErrTimeout, "preview", "get", "not ready", nil), http.StatusGatewayTimeout},
		{services.Wrap(services.ErrNotFound, "assetstore", "fingerprint", "missing", nil), http.StatusNotFound},
		{services.Wrap(services.ErrStorage, "assetstore", "put", "disk full", nil), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		f := newFixture(t)
		f.previews.err = tc.err
		w := f.do(t, http.MethodGet, "/api/images/preview?source=x.arw", "", nil)
		if w.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
		resp := decode[api.ErrorResponse](t, w)
		if tc.want == http.StatusInternalServerError && resp.Error != http.StatusText(http.StatusInternalServerError) {
			t.Fatalf("expected internal cause hidden, got %q", resp.Error)
		}
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
