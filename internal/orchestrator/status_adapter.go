package orchestrator

import (
    "context"

    "github.com/local/pdfassembly/internal/store"
)

// statusBackend is satisfied by store.RedisStatus and store.MemoryStatus.
type statusBackend interface {
    Set(ctx context.Context, jobID string, st store.Status) error
    Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

type statusAdapter struct { s statusBackend }

func NewStatusAdapter(s statusBackend) StatusStore { return &statusAdapter{s: s} }

func (a *statusAdapter) Set(ctx context.Context, jobID string, st Status) error {
    m := make(map[string]interface{})
    if st.Metadata != nil { m = st.Metadata }
    return a.s.Set(ctx, jobID, store.Status{
        Status:   st.Status,
        Progress: st.Progress,
        Message:  st.Message,
        Start:    st.Start,
        End:      st.End,
        Metadata: m,
    })
}

func (a *statusAdapter) Get(ctx context.Context, jobID string) (Status, bool, error) {
    st, ok, err := a.s.Get(ctx, jobID)
    if !ok || err != nil { return Status{}, ok, err }
    return Status{
        Status:   st.Status,
        Progress: st.Progress,
        Message:  st.Message,
        Start:    st.Start,
        End:      st.End,
        Metadata: st.Metadata,
    }, true, nil
}
