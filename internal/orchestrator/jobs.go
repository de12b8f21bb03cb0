package orchestrator

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "mime/multipart"
    "net/http"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/pdfassembly/internal/assembly"
    "github.com/local/pdfassembly/internal/items"
    "github.com/local/pdfassembly/internal/metrics"
    "github.com/local/pdfassembly/internal/planner"
)

const (
    StatusQueued     = "queued"
    StatusProcessing = "processing"
    StatusSuccess    = "success"
    StatusFailed     = "failed"
    StatusCancelled  = "cancelled"

    ConvertName = "converted.pdf"
)

type jobRegistry struct {
    mu      sync.Mutex
    cancels map[string]context.CancelFunc
    wg      sync.WaitGroup
}

func newJobRegistry() *jobRegistry {
    return &jobRegistry{cancels: map[string]context.CancelFunc{}}
}

func (j *jobRegistry) start(id string, cancel context.CancelFunc) {
    j.mu.Lock()
    j.cancels[id] = cancel
    j.mu.Unlock()
    j.wg.Add(1)
}

func (j *jobRegistry) finish(id string) {
    j.mu.Lock()
    if c, ok := j.cancels[id]; ok { c(); delete(j.cancels, id) }
    j.mu.Unlock()
    j.wg.Done()
}

func (j *jobRegistry) cancel(id string) bool {
    j.mu.Lock()
    defer j.mu.Unlock()
    c, ok := j.cancels[id]
    if ok { c() }
    return ok
}

func (j *jobRegistry) cancelAll() {
    j.mu.Lock()
    defer j.mu.Unlock()
    for _, c := range j.cancels { c() }
}

func (j *jobRegistry) wait(ctx context.Context) error {
    done := make(chan struct{})
    go func() { j.wg.Wait(); close(done) }()
    select {
    case <-done:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}

type jobResp struct {
    JobID  string `json:"job_id"`
    Status string `json:"status"`
}

func (o *Orchestrator) handleMerge(w http.ResponseWriter, r *http.Request) {
    o.mergeJob(w, r, "merge", assembly.DefaultMergeName, nil)
}

// handleConvert is the image-to-PDF workflow: a merge restricted to raster items.
func (o *Orchestrator) handleConvert(w http.ResponseWriter, r *http.Request) {
    o.mergeJob(w, r, "convert", ConvertName, func(snap items.Snapshot) error {
        for i := 0; i < snap.Len(); i++ {
            if it := snap.At(i); !it.Kind.IsRaster() {
                return fmt.Errorf("%w: %s is %s, only images can be converted", items.ErrKindNotSupported, it.Name, it.Kind)
            }
        }
        return nil
    })
}

func (o *Orchestrator) mergeJob(w http.ResponseWriter, r *http.Request, op, name string, check func(items.Snapshot) error) {
    s, ok := o.session(w, r)
    if !ok { return }
    s.mu.Lock()
    snap := s.list.Snapshot()
    s.touch()
    s.mu.Unlock()

    if snap.Len() == 0 { writeError(w, http.StatusUnprocessableEntity, "empty-list", nil); return }
    if check != nil {
        if err := check(snap); err != nil { writeDomainError(w, err); return }
    }
    if !s.busy.CompareAndSwap(false, true) { writeError(w, http.StatusConflict, "busy", nil); return }

    meta := map[string]any{"op": op, "session_id": s.id, "items": snap.Len()}
    id := o.startJob(s, op, meta, func(ctx context.Context) (assembly.Result, error) {
        return o.deps.Engine.Merge(ctx, snap, name)
    })
    writeJSON(w, http.StatusAccepted, jobResp{JobID: id, Status: StatusQueued})
}

type splitReq struct {
    Index     int                 `json:"index"`
    Strategy  string              `json:"strategy"`
    Size      *int                `json:"size"`
    Ranges    []planner.PageRange `json:"ranges"`
    RangeSpec string              `json:"range_spec"`
    Pages     []int               `json:"pages"`
}

// params applies the split defaults when the fields are absent: chunks of one page,
// or the single range 1-1. An explicit size is kept as sent.
func (req splitReq) params() (planner.Strategy, planner.Params, error) {
    strategy := planner.Strategy(strings.ToLower(req.Strategy))
    if strategy == "" { strategy = planner.StrategyFixed }
    p := planner.Params{Ranges: req.Ranges, Selection: req.Pages}
    switch strategy {
    case planner.StrategyFixed:
        p.Size = 1
        if req.Size != nil { p.Size = *req.Size }
    case planner.StrategyCustom:
        if req.RangeSpec != "" {
            parsed, err := planner.ParseRanges(req.RangeSpec)
            if err != nil { return "", p, err }
            p.Ranges = append(p.Ranges, parsed...)
        }
        if len(p.Ranges) == 0 { p.Ranges = []planner.PageRange{{From: 1, To: 1}} }
    }
    return strategy, p, planner.Check(strategy, p)
}

func (o *Orchestrator) handleSplit(w http.ResponseWriter, r *http.Request) {
    s, ok := o.session(w, r)
    if !ok { return }
    var req splitReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeError(w, http.StatusBadRequest, "invalid-json", err); return
    }
    strategy, params, err := req.params()
    if err != nil { writeDomainError(w, err); return }

    s.mu.Lock()
    it, err := s.list.At(req.Index)
    s.touch()
    s.mu.Unlock()
    if err != nil { writeDomainError(w, err); return }
    if !s.busy.CompareAndSwap(false, true) { writeError(w, http.StatusConflict, "busy", nil); return }

    meta := map[string]any{"op": "split", "session_id": s.id, "item": it.Key, "strategy": string(strategy)}
    id := o.startJob(s, "split", meta, func(ctx context.Context) (assembly.Result, error) {
        return o.deps.Engine.Split(ctx, it, strategy, params)
    })
    writeJSON(w, http.StatusAccepted, jobResp{JobID: id, Status: StatusQueued})
}

type outputView struct {
    Name     string `json:"name"`
    Pages    int    `json:"pages"`
    Location string `json:"location,omitempty"`
    Error    string `json:"error,omitempty"`
}

// startJob runs fn and the delivery of its outputs in the background. The caller
// has already marked s busy; the job clears it.
func (o *Orchestrator) startJob(s *session, op string, meta map[string]any, fn func(ctx context.Context) (assembly.Result, error)) string {
    jobID := uuid.NewString()
    start := time.Now()
    _ = o.deps.Status.Set(context.Background(), jobID, Status{Status: StatusQueued, Message: "queued", Start: &start, Metadata: meta})

    ctx, cancel := context.WithTimeout(context.Background(), o.deps.Options.JobTimeout)
    o.jobs.start(jobID, cancel)
    log.Info().Str("job_id", jobID).Str("session_id", s.id).Str("op", op).Msg("job created")

    go func() {
        defer o.jobs.finish(jobID)
        defer s.busy.Store(false)
        metrics.JobStarted()
        defer metrics.JobFinished()

        st := o.runJob(ctx, jobID, meta, fn)
        st.Start = &start
        end := time.Now()
        st.End = &end
        if err := o.deps.Status.Set(context.Background(), jobID, st); err != nil {
            log.Error().Err(err).Str("job_id", jobID).Msg("status write failed")
        }
        log.Info().Str("job_id", jobID).Str("status", st.Status).Dur("duration", end.Sub(start)).Msg(st.Message)
        o.cleanupAfterJob()
    }()
    return jobID
}

func (o *Orchestrator) runJob(ctx context.Context, jobID string, meta map[string]any, fn func(ctx context.Context) (assembly.Result, error)) Status {
    _ = o.deps.Status.Set(ctx, jobID, Status{Status: StatusProcessing, Progress: 10, Message: "assembling", Metadata: meta})

    res, err := fn(ctx)
    if err != nil {
        return terminalError(err, meta)
    }
    failures := make([]string, 0, len(res.Failures))
    for _, f := range res.Failures { failures = append(failures, f.Error()) }
    meta["failures"] = failures

    if len(res.Outputs) == 0 {
        msg := "no output produced"
        if len(failures) > 0 { msg = res.Summary() }
        return Status{Status: StatusFailed, Progress: 100, Message: msg, Metadata: meta}
    }

    _ = o.deps.Status.Set(ctx, jobID, Status{Status: StatusProcessing, Progress: 70, Message: "delivering", Metadata: meta})
    rep := o.deps.Dispatcher.Dispatch(ctx, jobID, res.Outputs)

    views := make([]outputView, 0, len(res.Outputs))
    for i, out := range res.Outputs {
        v := outputView{Name: out.Name, Pages: out.Pages}
        if i < len(rep.Deliveries) {
            v.Location = rep.Deliveries[i].Location
            if e := rep.Deliveries[i].Err; e != nil { v.Error = e.Error() }
        } else {
            v.Error = "not delivered"
        }
        views = append(views, v)
    }
    meta["outputs"] = views
    meta["delivered"] = rep.Delivered()

    switch {
    case ctx.Err() != nil && rep.Delivered() < len(res.Outputs):
        return terminalError(ctx.Err(), meta)
    case rep.Delivered() == 0:
        return Status{Status: StatusFailed, Progress: 100, Message: "delivery failed", Metadata: meta}
    case len(failures) > 0 || rep.Delivered() < len(res.Outputs):
        return Status{Status: StatusSuccess, Progress: 100, Message: fmt.Sprintf("completed with %d problem(s)", len(failures)+len(res.Outputs)-rep.Delivered()), Metadata: meta}
    }
    return Status{Status: StatusSuccess, Progress: 100, Message: "completed", Metadata: meta}
}

func terminalError(err error, meta map[string]any) Status {
    switch {
    case errors.Is(err, context.Canceled):
        return Status{Status: StatusCancelled, Progress: 100, Message: "cancelled", Metadata: meta}
    case errors.Is(err, context.DeadlineExceeded):
        return Status{Status: StatusFailed, Progress: 100, Message: "timed out", Metadata: meta}
    }
    meta["error"] = err.Error()
    return Status{Status: StatusFailed, Progress: 100, Message: err.Error(), Metadata: meta}
}

type statusResp struct {
    JobID    string         `json:"job_id"`
    Status   string         `json:"status"`
    Progress int            `json:"progress"`
    Message  string         `json:"message"`
    Start    *time.Time     `json:"start_time,omitempty"`
    End      *time.Time     `json:"end_time,omitempty"`
    Metadata map[string]any `json:"metadata,omitempty"`
}

func (o *Orchestrator) handleJobStatus(w http.ResponseWriter, r *http.Request) {
    id := r.PathValue("id")
    st, ok, err := o.deps.Status.Get(r.Context(), id)
    if err != nil { writeError(w, http.StatusInternalServerError, "status-unavailable", err); return }
    if !ok { writeError(w, http.StatusNotFound, "unknown-job", nil); return }
    writeJSON(w, http.StatusOK, statusResp{JobID: id, Status: st.Status, Progress: st.Progress, Message: st.Message, Start: st.Start, End: st.End, Metadata: st.Metadata})
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
    id := r.PathValue("id")
    if o.jobs.cancel(id) {
        log.Info().Str("job_id", id).Msg("job cancel requested")
        writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "status": "cancelling"})
        return
    }
    if _, ok, _ := o.deps.Status.Get(r.Context(), id); ok {
        writeError(w, http.StatusConflict, "job-finished", nil); return
    }
    writeError(w, http.StatusNotFound, "unknown-job", nil)
}

// handleDownloadOutput serves the n-th (1-based) output of a job delivered to the
// local result directory.
func (o *Orchestrator) handleDownloadOutput(w http.ResponseWriter, r *http.Request) {
    if o.deps.Results == nil { writeError(w, http.StatusNotFound, "not-local", nil); return }
    id := r.PathValue("id")
    n, err := pathInt(r, "n")
    if err != nil || n < 1 { writeError(w, http.StatusBadRequest, "invalid-output", err); return }
    st, ok, err := o.deps.Status.Get(r.Context(), id)
    if err != nil { writeError(w, http.StatusInternalServerError, "status-unavailable", err); return }
    if !ok { writeError(w, http.StatusNotFound, "unknown-job", nil); return }

    outs := outputsFrom(st.Metadata)
    if n > len(outs) || outs[n-1].Location == "" { writeError(w, http.StatusNotFound, "unknown-output", nil); return }
    loc := filepath.Clean(outs[n-1].Location)
    dir := filepath.Clean(o.deps.Results.JobDir(id)) + string(filepath.Separator)
    if !strings.HasPrefix(loc, dir) { writeError(w, http.StatusNotFound, "not-local", nil); return }

    f, err := os.Open(loc)
    if err != nil { writeError(w, http.StatusGone, "expired", err); return }
    defer f.Close()
    info, err := f.Stat()
    if err != nil { writeError(w, http.StatusGone, "expired", err); return }
    w.Header().Set("Content-Type", "application/pdf")
    w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", outs[n-1].Name))
    http.ServeContent(w, r, outs[n-1].Name, info.ModTime(), f)
}

// outputsFrom reads the output views back from stored metadata, whatever shape the
// store returned them in.
func outputsFrom(meta map[string]any) []outputView {
    raw, ok := meta["outputs"]
    if !ok { return nil }
    if v, ok := raw.([]outputView); ok { return v }
    b, err := json.Marshal(raw)
    if err != nil { return nil }
    var out []outputView
    _ = json.Unmarshal(b, &out)
    return out
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
    f, err := fh.Open()
    if err != nil { return nil, err }
    defer f.Close()
    return io.ReadAll(f)
}

func pathInt(r *http.Request, name string) (int, error) {
    return strconv.Atoi(r.PathValue(name))
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }
