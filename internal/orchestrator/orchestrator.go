package orchestrator

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/pdfassembly/internal/acquire"
    "github.com/local/pdfassembly/internal/assembly"
    "github.com/local/pdfassembly/internal/dispatcher"
    "github.com/local/pdfassembly/internal/items"
    "github.com/local/pdfassembly/internal/metrics"
    "github.com/local/pdfassembly/internal/planner"
    "github.com/local/pdfassembly/internal/statuscheck"
    "github.com/local/pdfassembly/internal/storage"
    "github.com/local/pdfassembly/internal/thumbnail"
)

type Status struct {
    Status   string
    Progress int
    Message  string
    Start    *time.Time
    End      *time.Time
    Metadata map[string]any
}

type StatusStore interface {
    Set(ctx context.Context, jobID string, st Status) error
    Get(ctx context.Context, jobID string) (Status, bool, error)
}

// Assembler runs merge and split over snapshots.
type Assembler interface {
    Merge(ctx context.Context, snap items.Snapshot, name string) (assembly.Result, error)
    Split(ctx context.Context, item items.SourceItem, strategy planner.Strategy, params planner.Params) (assembly.Result, error)
}

// Deliverer hands finished outputs to the host surface.
type Deliverer interface {
    Dispatch(ctx context.Context, jobID string, outputs []assembly.Output) dispatcher.Report
}

type DriveFetcher interface {
    Fetch(ctx context.Context, sess *acquire.Session, fileID, name string) (items.SourceItem, error)
}

type ObjectFetcher interface {
    Fetch(ctx context.Context, ref string) (items.SourceItem, error)
}

// ResultFiles is the local delivery directory, when outputs are kept on disk.
type ResultFiles interface {
    JobDir(jobID string) string
    Cleanup(maxAge time.Duration) int
}

type Options struct {
    MaxUploadBytes int64
    JobTimeout     time.Duration
    ThumbScale     float64
    ResultMaxAge   time.Duration
    SessionIdle    time.Duration
}

type Dependencies struct {
    Status     StatusStore
    Engine     Assembler
    Dispatcher Deliverer
    Thumbnails *thumbnail.Renderer
    Drive      DriveFetcher
    Objects    ObjectFetcher
    Results    ResultFiles
    Health     *statuscheck.Checker
    Options    Options
}

type Orchestrator struct {
    deps     Dependencies
    sessions *sessionRegistry
    jobs     *jobRegistry
}

func New(deps Dependencies) *Orchestrator {
    if deps.Options.MaxUploadBytes <= 0 { deps.Options.MaxUploadBytes = 100 << 20 }
    if deps.Options.JobTimeout <= 0 { deps.Options.JobTimeout = 5 * time.Minute }
    if deps.Options.ThumbScale <= 0 { deps.Options.ThumbScale = thumbnail.DefaultScale }
    if deps.Thumbnails == nil { deps.Thumbnails = thumbnail.New(0) }
    return &Orchestrator{deps: deps, sessions: newSessionRegistry(), jobs: newJobRegistry()}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request){ w.WriteHeader(http.StatusOK); _,_ = w.Write([]byte("ok")) })
    mux.HandleFunc("GET /health/details", o.handleHealthDetails)
    mux.Handle("GET /metrics", metrics.Handler())

    mux.HandleFunc("POST /sessions", o.handleCreateSession)
    mux.HandleFunc("DELETE /sessions/{id}", o.handleDeleteSession)
    mux.HandleFunc("POST /sessions/{id}/token", o.handleSetToken)

    mux.HandleFunc("GET /sessions/{id}/items", o.handleListItems)
    mux.HandleFunc("POST /sessions/{id}/items", o.handleUpload)
    mux.HandleFunc("POST /sessions/{id}/items/import", o.handleImport)
    mux.HandleFunc("POST /sessions/{id}/items/move", o.handleMove)
    mux.HandleFunc("DELETE /sessions/{id}/items/{index}", o.handleRemove)
    mux.HandleFunc("DELETE /sessions/{id}/items", o.handleClear)
    mux.HandleFunc("GET /sessions/{id}/items/{index}/pages/{page}/thumbnail", o.handleThumbnail)

    mux.HandleFunc("POST /sessions/{id}/merge", o.handleMerge)
    mux.HandleFunc("POST /sessions/{id}/convert", o.handleConvert)
    mux.HandleFunc("POST /sessions/{id}/split", o.handleSplit)

    mux.HandleFunc("GET /jobs/{id}", o.handleJobStatus)
    mux.HandleFunc("POST /jobs/{id}/cancel", o.handleCancelJob)
    mux.HandleFunc("GET /jobs/{id}/outputs/{n}", o.handleDownloadOutput)
}

func (o *Orchestrator) handleHealthDetails(w http.ResponseWriter, r *http.Request) {
    if o.deps.Health == nil { writeJSON(w, http.StatusOK, map[string]any{"ok": true}); return }
    sum := o.deps.Health.Summary(r.Context())
    code := http.StatusOK
    if !sum.Healthy() { code = http.StatusServiceUnavailable }
    writeJSON(w, code, sum)
}

// Wait blocks until every running job has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error { return o.jobs.wait(ctx) }

// Shutdown cancels running jobs and waits for them to record their final status.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
    o.jobs.cancelAll()
    return o.jobs.wait(ctx)
}

type errorBody struct {
    Error   string `json:"error"`
    Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind string, err error) {
    msg := kind
    if err != nil { msg = err.Error() }
    if code >= 500 { log.Error().Err(err).Str("kind", kind).Msg("request failed") }
    writeJSON(w, code, errorBody{Error: kind, Message: msg})
}

// writeDomainError maps sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
    var se *acquire.StatusError
    switch {
    case errors.Is(err, items.ErrIndexOutOfRange):
        writeError(w, http.StatusBadRequest, items.ErrIndexOutOfRange.Error(), err)
    case errors.Is(err, items.ErrKindNotSupported):
        writeError(w, http.StatusUnsupportedMediaType, items.ErrKindNotSupported.Error(), err)
    case errors.Is(err, planner.ErrInvalidChunkSize):
        writeError(w, http.StatusUnprocessableEntity, planner.ErrInvalidChunkSize.Error(), err)
    case errors.Is(err, planner.ErrEmptySelection):
        writeError(w, http.StatusUnprocessableEntity, planner.ErrEmptySelection.Error(), err)
    case errors.Is(err, planner.ErrNoValidRanges):
        writeError(w, http.StatusUnprocessableEntity, planner.ErrNoValidRanges.Error(), err)
    case errors.Is(err, planner.ErrInvalidRange):
        writeError(w, http.StatusUnprocessableEntity, planner.ErrInvalidRange.Error(), err)
    case errors.Is(err, planner.ErrUnknownStrategy):
        writeError(w, http.StatusUnprocessableEntity, planner.ErrUnknownStrategy.Error(), err)
    case errors.Is(err, acquire.ErrNoSession):
        writeError(w, http.StatusUnauthorized, "no-session", err)
    case errors.Is(err, acquire.ErrSessionExpired):
        writeError(w, http.StatusUnauthorized, "session-expired", err)
    case errors.Is(err, acquire.ErrTooLarge):
        writeError(w, http.StatusRequestEntityTooLarge, "too-large", err)
    case errors.Is(err, acquire.ErrEmptyPayload):
        writeError(w, http.StatusBadRequest, "empty-payload", err)
    case errors.Is(err, storage.ErrInvalidRef):
        writeError(w, http.StatusBadRequest, "invalid-ref", err)
    case errors.As(err, &se):
        writeError(w, http.StatusBadGateway, "upstream", err)
    case errors.Is(err, thumbnail.ErrInvalidScale):
        writeError(w, http.StatusBadRequest, "invalid-scale", err)
    case errors.Is(err, thumbnail.ErrPageOutOfRange):
        writeError(w, http.StatusNotFound, "page-out-of-range", err)
    default:
        writeError(w, http.StatusInternalServerError, "internal", err)
    }
}
