package orchestrator

import (
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/pdfassembly/internal/acquire"
    "github.com/local/pdfassembly/internal/items"
    "github.com/local/pdfassembly/internal/thumbnail"
)

// session is one editing context: its ordered item list and, optionally, a cloud
// credential. mu serialises every list mutation; busy allows one assembly at a time.
type session struct {
    id       string
    mu       sync.Mutex
    list     *items.List
    cred     *acquire.Session
    lastUsed time.Time
    busy     atomic.Bool
}

func (s *session) touch() { s.lastUsed = time.Now() }

type sessionRegistry struct {
    mu       sync.RWMutex
    sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
    return &sessionRegistry{sessions: map[string]*session{}}
}

func (r *sessionRegistry) create(cred *acquire.Session) *session {
    s := &session{id: uuid.NewString(), list: items.NewList(), cred: cred, lastUsed: time.Now()}
    r.mu.Lock()
    r.sessions[s.id] = s
    r.mu.Unlock()
    return s
}

func (r *sessionRegistry) get(id string) (*session, bool) {
    r.mu.RLock()
    defer r.mu.RUnlock()
    s, ok := r.sessions[id]
    return s, ok
}

func (r *sessionRegistry) remove(id string) bool {
    r.mu.Lock()
    defer r.mu.Unlock()
    _, ok := r.sessions[id]
    delete(r.sessions, id)
    return ok
}

// evictIdle drops sessions unused for longer than idle that have no running job.
func (r *sessionRegistry) evictIdle(idle time.Duration) int {
    cutoff := time.Now().Add(-idle)
    r.mu.Lock()
    defer r.mu.Unlock()
    n := 0
    for id, s := range r.sessions {
        s.mu.Lock()
        stale := s.lastUsed.Before(cutoff) && !s.busy.Load()
        s.mu.Unlock()
        if stale {
            delete(r.sessions, id)
            n++
        }
    }
    return n
}

func (o *Orchestrator) session(w http.ResponseWriter, r *http.Request) (*session, bool) {
    s, ok := o.sessions.get(r.PathValue("id"))
    if !ok {
        writeError(w, http.StatusNotFound, "unknown-session", nil)
        return nil, false
    }
    return s, true
}

type itemView struct {
    Index int    `json:"index"`
    Key   string `json:"key"`
    Name  string `json:"name"`
    Kind  string `json:"kind"`
    Size  int    `json:"size"`
}

func viewOf(i int, it items.SourceItem) itemView {
    return itemView{Index: i, Key: it.Key, Name: it.Name, Kind: string(it.Kind), Size: it.Size()}
}

// listView renders the list projection. Caller holds s.mu.
func listView(s *session) []itemView {
    snap := s.list.Snapshot()
    out := make([]itemView, snap.Len())
    for i := range out { out[i] = viewOf(i, snap.At(i)) }
    return out
}

type tokenReq struct {
    Token string `json:"token"`
}

func (o *Orchestrator) handleCreateSession(w http.ResponseWriter, r *http.Request) {
    var req tokenReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
        writeError(w, http.StatusBadRequest, "invalid-json", err); return
    }
    var cred *acquire.Session
    if req.Token != "" {
        c, err := acquire.NewSession(req.Token)
        if err != nil { writeDomainError(w, err); return }
        cred = c
    }
    s := o.sessions.create(cred)
    log.Info().Str("session_id", s.id).Bool("cloud", cred != nil).Msg("session created")
    writeJSON(w, http.StatusCreated, map[string]any{"session_id": s.id})
}

func (o *Orchestrator) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
    if !o.sessions.remove(r.PathValue("id")) {
        writeError(w, http.StatusNotFound, "unknown-session", nil); return
    }
    w.WriteHeader(http.StatusNoContent)
}

func (o *Orchestrator) handleSetToken(w http.ResponseWriter, r *http.Request) {
    s, ok := o.session(w, r)
    if !ok { return }
    var req tokenReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeError(w, http.StatusBadRequest, "invalid-json", err); return
    }
    cred, err := acquire.NewSession(req.Token)
    if err != nil { writeDomainError(w, err); return }
    s.mu.Lock()
    s.cred = cred
    s.touch()
    s.mu.Unlock()
    w.WriteHeader(http.StatusNoContent)
}

func (o *Orchestrator) handleListItems(w http.ResponseWriter, r *http.Request) {
    s, ok := o.session(w, r)
    if !ok { return }
    s.mu.Lock()
    v := listView(s)
    s.touch()
    s.mu.Unlock()
    writeJSON(w, http.StatusOK, map[string]any{"items": v})
}

type rejection struct {
    Name  string `json:"name"`
    Error string `json:"error"`
}

// handleUpload appends every acceptable "file" part, in upload order.
func (o *Orchestrator) handleUpload(w http.ResponseWriter, r *http.Request) {
    s, ok := o.session(w, r)
    if !ok { return }
    r.Body = http.MaxBytesReader(w, r.Body, o.deps.Options.MaxUploadBytes)
    if err := r.ParseMultipartForm(32 << 20); err != nil {
        var tooBig *http.MaxBytesError
        if errors.As(err, &tooBig) { writeError(w, http.StatusRequestEntityTooLarge, "too-large", err); return }
        writeError(w, http.StatusBadRequest, "invalid-multipart", err); return
    }
    defer r.MultipartForm.RemoveAll()
    files := r.MultipartForm.File["file"]
    if len(files) == 0 { writeError(w, http.StatusBadRequest, "missing-file", nil); return }

    var accepted []items.SourceItem
    var rejected []rejection
    for _, fh := range files {
        data, err := readPart(fh)
        if err == nil {
            var it items.SourceItem
            it, err = acquire.FromUpload(fh.Filename, fh.Header.Get("Content-Type"), data)
            if err == nil { accepted = append(accepted, it); continue }
        }
        log.Warn().Err(err).Str("session_id", s.id).Str("name", fh.Filename).Msg("upload rejected")
        rejected = append(rejected, rejection{Name: fh.Filename, Error: err.Error()})
    }

    added := o.appendItems(s, accepted, &rejected)
    writeJSON(w, http.StatusOK, map[string]any{"accepted": added, "rejected": rejected})
}

// appendItems adds items under the session lock and returns their list views.
func (o *Orchestrator) appendItems(s *session, its []items.SourceItem, rejected *[]rejection) []itemView {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.touch()
    added := make([]itemView, 0, len(its))
    for _, it := range its {
        stored, err := s.list.Append(it)
        if err != nil {
            *rejected = append(*rejected, rejection{Name: it.Name, Error: err.Error()})
            continue
        }
        added = append(added, viewOf(s.list.Len()-1, stored))
    }
    return added
}

type importReq struct {
    Source string `json:"source"`
    FileID string `json:"file_id"`
    Name   string `json:"name"`
    Ref    string `json:"ref"`
}

func (o *Orchestrator) handleImport(w http.ResponseWriter, r *http.Request) {
    s, ok := o.session(w, r)
    if !ok { return }
    var req importReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeError(w, http.StatusBadRequest, "invalid-json", err); return
    }

    var it items.SourceItem
    var err error
    switch req.Source {
    case "drive":
        if o.deps.Drive == nil { writeError(w, http.StatusNotImplemented, "source-disabled", nil); return }
        if req.FileID == "" { writeError(w, http.StatusBadRequest, "missing-file-id", nil); return }
        s.mu.Lock()
        cred := s.cred
        s.mu.Unlock()
        it, err = o.deps.Drive.Fetch(r.Context(), cred, req.FileID, req.Name)
    case "s3":
        if o.deps.Objects == nil { writeError(w, http.StatusNotImplemented, "source-disabled", nil); return }
        if req.Ref == "" { writeError(w, http.StatusBadRequest, "missing-ref", nil); return }
        it, err = o.deps.Objects.Fetch(r.Context(), req.Ref)
    default:
        writeError(w, http.StatusBadRequest, "unknown-source", nil); return
    }
    if err != nil { writeDomainError(w, err); return }

    var rejected []rejection
    added := o.appendItems(s, []items.SourceItem{it}, &rejected)
    if len(added) == 0 { writeError(w, http.StatusUnsupportedMediaType, items.ErrKindNotSupported.Error(), nil); return }
    log.Info().Str("session_id", s.id).Str("source", req.Source).Str("item", added[0].Key).Msg("item imported")
    writeJSON(w, http.StatusCreated, added[0])
}

type moveReq struct {
    From *int `json:"from"`
    To   *int `json:"to"`
}

func (o *Orchestrator) handleMove(w http.ResponseWriter, r *http.Request) {
    s, ok := o.session(w, r)
    if !ok { return }
    var req moveReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.From == nil || req.To == nil {
        writeError(w, http.StatusBadRequest, "invalid-json", err); return
    }
    s.mu.Lock()
    err := s.list.MoveTo(*req.From, *req.To)
    v := listView(s)
    s.touch()
    s.mu.Unlock()
    if err != nil { writeDomainError(w, err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": v})
}

func (o *Orchestrator) handleRemove(w http.ResponseWriter, r *http.Request) {
    s, ok := o.session(w, r)
    if !ok { return }
    idx, err := pathInt(r, "index")
    if err != nil { writeError(w, http.StatusBadRequest, "invalid-index", err); return }
    s.mu.Lock()
    err = s.list.RemoveAt(idx)
    v := listView(s)
    s.touch()
    s.mu.Unlock()
    if err != nil { writeDomainError(w, err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": v})
}

func (o *Orchestrator) handleClear(w http.ResponseWriter, r *http.Request) {
    s, ok := o.session(w, r)
    if !ok { return }
    s.mu.Lock()
    s.list.Clear()
    s.touch()
    s.mu.Unlock()
    w.WriteHeader(http.StatusNoContent)
}

func (o *Orchestrator) handleThumbnail(w http.ResponseWriter, r *http.Request) {
    s, ok := o.session(w, r)
    if !ok { return }
    idx, err := pathInt(r, "index")
    if err != nil { writeError(w, http.StatusBadRequest, "invalid-index", err); return }
    page, err := pathInt(r, "page")
    if err != nil { writeError(w, http.StatusBadRequest, "invalid-page", err); return }
    scale := o.deps.Options.ThumbScale
    if v := r.URL.Query().Get("scale"); v != "" {
        if scale, err = parseFloat(v); err != nil { writeError(w, http.StatusBadRequest, "invalid-scale", err); return }
    }

    s.mu.Lock()
    it, err := s.list.At(idx)
    s.touch()
    s.mu.Unlock()
    if err != nil { writeError(w, http.StatusNotFound, items.ErrIndexOutOfRange.Error(), err); return }

    th, err := o.deps.Thumbnails.RenderItem(it, page, scale)
    if err != nil {
        if errors.Is(err, thumbnail.ErrInvalidScale) || errors.Is(err, thumbnail.ErrPageOutOfRange) { writeDomainError(w, err); return }
        log.Warn().Err(err).Str("session_id", s.id).Str("item", it.Key).Int("page", page).Msg("thumbnail render failed")
        writeError(w, http.StatusUnprocessableEntity, "render-failed", err)
        return
    }
    w.Header().Set("Content-Type", "image/jpeg")
    w.Header().Set("Cache-Control", "private, max-age=300")
    _, _ = w.Write(th.JPEG)
}
