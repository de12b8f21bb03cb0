package store

import (
    "context"
    "encoding/json"
    "sync"
    "time"
)

// MemoryStatus is the in-process status store used when no Redis is configured.
// Entries expire ttl after their last write.
type MemoryStatus struct {
    mu      sync.Mutex
    ttl     time.Duration
    now     func() time.Time
    entries map[string]memEntry
}

type memEntry struct {
    st      Status
    expires time.Time
}

func NewMemoryStatus(ttl time.Duration) *MemoryStatus {
    return &MemoryStatus{ttl: ttl, now: time.Now, entries: map[string]memEntry{}}
}

func (s *MemoryStatus) Set(ctx context.Context, jobID string, st Status) error {
    // round-trip metadata so readers see the same shapes Redis would return
    if st.Metadata != nil {
        b, err := json.Marshal(st.Metadata)
        if err != nil { return err }
        var m map[string]interface{}
        if err := json.Unmarshal(b, &m); err != nil { return err }
        st.Metadata = m
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    now := s.now()
    s.sweep(now)
    e := memEntry{st: st}
    if s.ttl > 0 { e.expires = now.Add(s.ttl) }
    s.entries[jobID] = e
    return nil
}

func (s *MemoryStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    e, ok := s.entries[jobID]
    if !ok { return Status{}, false, nil }
    if !e.expires.IsZero() && !s.now().Before(e.expires) {
        delete(s.entries, jobID)
        return Status{}, false, nil
    }
    return e.st, true, nil
}

func (s *MemoryStatus) Ping(ctx context.Context) error { return nil }

func (s *MemoryStatus) Close() error { return nil }

func (s *MemoryStatus) sweep(now time.Time) {
    for id, e := range s.entries {
        if !e.expires.IsZero() && !now.Before(e.expires) { delete(s.entries, id) }
    }
}
