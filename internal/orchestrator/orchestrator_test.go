package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/local/pdfassembly/internal/assembly"
	"github.com/local/pdfassembly/internal/codec"
	"github.com/local/pdfassembly/internal/dispatcher"
	"github.com/local/pdfassembly/internal/items"
	"github.com/local/pdfassembly/internal/planner"
	"github.com/local/pdfassembly/internal/sink"
	"github.com/local/pdfassembly/internal/store"
)

type harness struct {
	t    *testing.T
	srv  *httptest.Server
	orch *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	local := sink.NewLocal(t.TempDir())
	orch := New(Dependencies{
		Status:     NewStatusAdapter(store.NewMemoryStatus(time.Hour)),
		Engine:     assembly.New(codec.New()),
		Dispatcher: dispatcher.New(local, dispatcher.Options{Delay: time.Millisecond}),
		Results:    local,
		Options:    Options{JobTimeout: 30 * time.Second, SessionIdle: time.Hour},
	})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &harness{t: t, srv: srv, orch: orch}
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func (h *harness) do(method, path, contentType string, body io.Reader) (*http.Response, []byte) {
	h.t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	if err != nil {
		h.t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		h.t.Fatal(err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp, b
}

func (h *harness) json(method, path string, in any, wantCode int, out any) {
	h.t.Helper()
	var body io.Reader
	if in != nil {
		b, _ := json.Marshal(in)
		body = bytes.NewReader(b)
	}
	resp, b := h.do(method, path, "application/json", body)
	if resp.StatusCode != wantCode {
		h.t.Fatalf("%s %s = %d, want %d: %s", method, path, resp.StatusCode, wantCode, b)
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			h.t.Fatalf("decode %s: %v", b, err)
		}
	}
}

func (h *harness) newSession() string {
	var out struct {
		SessionID string `json:"session_id"`
	}
	h.json(http.MethodPost, "/sessions", nil, http.StatusCreated, &out)
	return out.SessionID
}

type upload struct {
	name string
	data []byte
}

func (h *harness) upload(sid string, files ...upload) (accepted []itemView, rejected []rejection) {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("file", f.name)
		if err != nil {
			h.t.Fatal(err)
		}
		_, _ = part.Write(f.data)
	}
	_ = mw.Close()
	resp, b := h.do(http.MethodPost, "/sessions/"+sid+"/items", mw.FormDataContentType(), &buf)
	if resp.StatusCode != http.StatusOK {
		h.t.Fatalf("upload = %d: %s", resp.StatusCode, b)
	}
	var out struct {
		Accepted []itemView  `json:"accepted"`
		Rejected []rejection `json:"rejected"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		h.t.Fatal(err)
	}
	return out.Accepted, out.Rejected
}

// awaitJob polls until the job leaves the queued and processing states.
func (h *harness) awaitJob(id string) statusResp {
	h.t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		var st statusResp
		h.json(http.MethodGet, "/jobs/"+id, nil, http.StatusOK, &st)
		if st.Status != StatusQueued && st.Status != StatusProcessing {
			return st
		}
		time.Sleep(20 * time.Millisecond)
	}
	h.t.Fatalf("job %s did not finish", id)
	return statusResp{}
}

func pageCount(t *testing.T, data []byte) int {
	t.Helper()
	doc, err := codec.New().Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return doc.PageCount()
}

func TestMergeFlow(t *testing.T) {
	h := newHarness(t)
	sid := h.newSession()

	acc, rej := h.upload(sid,
		upload{"a.png", pngOf(t, 40, 20)},
		upload{"notes.txt", []byte("plain text")},
		upload{"b.png", pngOf(t, 30, 30)},
	)
	if len(acc) != 2 || len(rej) != 1 || rej[0].Name != "notes.txt" {
		t.Fatalf("accepted=%+v rejected=%+v", acc, rej)
	}

	var list struct {
		Items []itemView `json:"items"`
	}
	h.json(http.MethodPost, "/sessions/"+sid+"/items/move", map[string]int{"from": 1, "to": 0}, http.StatusOK, &list)
	if list.Items[0].Name != "b.png" || list.Items[1].Name != "a.png" {
		t.Fatalf("after move: %+v", list.Items)
	}

	var job jobResp
	h.json(http.MethodPost, "/sessions/"+sid+"/merge", nil, http.StatusAccepted, &job)
	st := h.awaitJob(job.JobID)
	if st.Status != StatusSuccess {
		t.Fatalf("status = %+v", st)
	}
	outs := outputsFrom(st.Metadata)
	if len(outs) != 1 || outs[0].Name != assembly.DefaultMergeName || outs[0].Pages != 2 {
		t.Fatalf("outputs = %+v", outs)
	}

	resp, pdf := h.do(http.MethodGet, "/jobs/"+job.JobID+"/outputs/1", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download = %d: %s", resp.StatusCode, pdf)
	}
	if n := pageCount(t, pdf); n != 2 {
		t.Fatalf("downloaded pages = %d", n)
	}
	if resp, _ := h.do(http.MethodGet, "/jobs/"+job.JobID+"/outputs/2", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing output = %d", resp.StatusCode)
	}
}

func TestMergeEmptyList(t *testing.T) {
	h := newHarness(t)
	sid := h.newSession()
	h.json(http.MethodPost, "/sessions/"+sid+"/merge", nil, http.StatusUnprocessableEntity, nil)
}

func TestSplitFixed(t *testing.T) {
	h := newHarness(t)
	sid := h.newSession()
	h.upload(sid, upload{"a.png", pngOf(t, 10, 10)}, upload{"b.png", pngOf(t, 20, 10)}, upload{"c.png", pngOf(t, 30, 10)})

	var merge jobResp
	h.json(http.MethodPost, "/sessions/"+sid+"/merge", nil, http.StatusAccepted, &merge)
	if st := h.awaitJob(merge.JobID); st.Status != StatusSuccess {
		t.Fatalf("merge = %+v", st)
	}
	_, merged := h.do(http.MethodGet, "/jobs/"+merge.JobID+"/outputs/1", "", nil)

	sid2 := h.newSession()
	h.upload(sid2, upload{"merged.pdf", merged})
	var split jobResp
	h.json(http.MethodPost, "/sessions/"+sid2+"/split", map[string]any{"index": 0, "strategy": "fixed", "size": 2}, http.StatusAccepted, &split)
	st := h.awaitJob(split.JobID)
	outs := outputsFrom(st.Metadata)
	if st.Status != StatusSuccess || len(outs) != 2 {
		t.Fatalf("split = %+v", st)
	}
	if outs[0].Name != assembly.SplitPartName(1) || outs[0].Pages != 2 || outs[1].Pages != 1 {
		t.Fatalf("outputs = %+v", outs)
	}
}

func TestSplitValidation(t *testing.T) {
	h := newHarness(t)
	sid := h.newSession()
	h.upload(sid, upload{"a.png", pngOf(t, 10, 10)})

	cases := []struct {
		name string
		body map[string]any
		code int
	}{
		{"bad size", map[string]any{"index": 0, "strategy": "fixed", "size": -1}, http.StatusUnprocessableEntity},
		{"zero size", map[string]any{"index": 0, "strategy": "fixed", "size": 0}, http.StatusUnprocessableEntity},
		{"unparseable ranges", map[string]any{"index": 0, "strategy": "custom", "range_spec": "x-y"}, http.StatusUnprocessableEntity},
		{"empty selection", map[string]any{"index": 0, "strategy": "selection"}, http.StatusUnprocessableEntity},
		{"unknown strategy", map[string]any{"index": 0, "strategy": "halves"}, http.StatusUnprocessableEntity},
		{"bad index", map[string]any{"index": 5}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h.json(http.MethodPost, "/sessions/"+sid+"/split", tc.body, tc.code, nil)
		})
	}
}

func TestSplitParamsDefaults(t *testing.T) {
	strategy, p, err := splitReq{}.params()
	if err != nil || strategy != planner.StrategyFixed || p.Size != 1 {
		t.Fatalf("absent fields: %s %+v %v", strategy, p, err)
	}
	zero := 0
	if _, _, err := (splitReq{Size: &zero}).params(); !errors.Is(err, planner.ErrInvalidChunkSize) {
		t.Fatalf("explicit zero size: expected ErrInvalidChunkSize, got %v", err)
	}
	_, p, err = splitReq{Strategy: "custom"}.params()
	if err != nil || len(p.Ranges) != 1 || p.Ranges[0] != (planner.PageRange{From: 1, To: 1}) {
		t.Fatalf("custom default: %+v %v", p, err)
	}
}

func TestConvertRejectsPDF(t *testing.T) {
	h := newHarness(t)
	sid := h.newSession()
	h.upload(sid, upload{"a.png", pngOf(t, 10, 10)})

	var job jobResp
	h.json(http.MethodPost, "/sessions/"+sid+"/convert", nil, http.StatusAccepted, &job)
	st := h.awaitJob(job.JobID)
	outs := outputsFrom(st.Metadata)
	if st.Status != StatusSuccess || len(outs) != 1 || outs[0].Name != ConvertName {
		t.Fatalf("convert = %+v", st)
	}
	_, pdf := h.do(http.MethodGet, "/jobs/"+job.JobID+"/outputs/1", "", nil)

	h.upload(sid, upload{"doc.pdf", pdf})
	h.json(http.MethodPost, "/sessions/"+sid+"/convert", nil, http.StatusUnsupportedMediaType, nil)
}

func TestSessionErrors(t *testing.T) {
	h := newHarness(t)
	h.json(http.MethodGet, "/sessions/nope/items", nil, http.StatusNotFound, nil)
	h.json(http.MethodGet, "/jobs/nope", nil, http.StatusNotFound, nil)
	h.json(http.MethodPost, "/jobs/nope/cancel", nil, http.StatusNotFound, nil)

	sid := h.newSession()
	h.json(http.MethodDelete, "/sessions/"+sid+"/items/0", nil, http.StatusBadRequest, nil)
	h.json(http.MethodPost, "/sessions/"+sid+"/items/move", map[string]int{"from": 0}, http.StatusBadRequest, nil)
	h.json(http.MethodPost, "/sessions/"+sid+"/items/import", map[string]string{"source": "drive", "file_id": "x"}, http.StatusNotImplemented, nil)
	h.json(http.MethodPost, "/sessions", map[string]string{"token": "Bearer "}, http.StatusUnauthorized, nil)
	h.json(http.MethodPost, "/sessions", map[string]string{"token": "opaque-token"}, http.StatusCreated, nil)

	h.json(http.MethodDelete, "/sessions/"+sid, nil, http.StatusNoContent, nil)
	h.json(http.MethodGet, "/sessions/"+sid+"/items", nil, http.StatusNotFound, nil)
}

func TestRemoveClearAndThumbnail(t *testing.T) {
	h := newHarness(t)
	sid := h.newSession()
	h.upload(sid, upload{"a.png", pngOf(t, 40, 20)}, upload{"b.png", pngOf(t, 10, 10)})

	resp, b := h.do(http.MethodGet, "/sessions/"+sid+"/items/0/pages/0/thumbnail?scale=0.5", "", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" || len(b) == 0 {
		t.Fatalf("thumbnail = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if resp, _ := h.do(http.MethodGet, "/sessions/"+sid+"/items/0/pages/1/thumbnail", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("page out of range = %d", resp.StatusCode)
	}
	if resp, _ := h.do(http.MethodGet, "/sessions/"+sid+"/items/0/pages/0/thumbnail?scale=9", "", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad scale = %d", resp.StatusCode)
	}

	var list struct {
		Items []itemView `json:"items"`
	}
	h.json(http.MethodDelete, "/sessions/"+sid+"/items/0", nil, http.StatusOK, &list)
	if len(list.Items) != 1 || list.Items[0].Name != "b.png" || list.Items[0].Index != 0 {
		t.Fatalf("after remove: %+v", list.Items)
	}
	h.json(http.MethodDelete, "/sessions/"+sid+"/items", nil, http.StatusNoContent, nil)
	h.json(http.MethodGet, "/sessions/"+sid+"/items", nil, http.StatusOK, &list)
	if len(list.Items) != 0 {
		t.Fatalf("after clear: %+v", list.Items)
	}
}

// gateEngine blocks every merge until its context ends.
type gateEngine struct {
	started chan struct{}
}

func (e gateEngine) Merge(ctx context.Context, _ items.Snapshot, _ string) (assembly.Result, error) {
	close(e.started)
	<-ctx.Done()
	return assembly.Result{}, ctx.Err()
}

func (e gateEngine) Split(ctx context.Context, _ items.SourceItem, _ planner.Strategy, _ planner.Params) (assembly.Result, error) {
	return assembly.Result{}, nil
}

func TestBusySessionAndCancel(t *testing.T) {
	h := newHarness(t)
	started := make(chan struct{})
	h.orch.deps.Engine = gateEngine{started: started}
	sid := h.newSession()
	h.upload(sid, upload{"a.png", pngOf(t, 10, 10)})

	var job jobResp
	h.json(http.MethodPost, "/sessions/"+sid+"/merge", nil, http.StatusAccepted, &job)
	<-started
	h.json(http.MethodPost, "/sessions/"+sid+"/merge", nil, http.StatusConflict, nil)
	h.json(http.MethodPost, "/jobs/"+job.JobID+"/cancel", nil, http.StatusAccepted, nil)

	st := h.awaitJob(job.JobID)
	if st.Status != StatusCancelled {
		t.Fatalf("status = %+v", st)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.orch.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	h.json(http.MethodPost, "/jobs/"+job.JobID+"/cancel", nil, http.StatusConflict, nil)
	// the session is free again
	h.orch.deps.Engine = assembly.New(codec.New())
	h.json(http.MethodPost, "/sessions/"+sid+"/merge", nil, http.StatusAccepted, &job)
	if st := h.awaitJob(job.JobID); st.Status != StatusSuccess {
		t.Fatalf("second merge = %+v", st)
	}
}

func TestJanitorEvictsIdleSessions(t *testing.T) {
	h := newHarness(t)
	sid := h.newSession()
	s, _ := h.orch.sessions.get(sid)
	s.mu.Lock()
	s.lastUsed = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()
	h.orch.sweep()
	if _, ok := h.orch.sessions.get(sid); ok {
		t.Fatal("idle session survived")
	}
}
