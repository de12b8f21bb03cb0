package sink

import (
    "context"
    "fmt"
    "sync"
)

// Memory keeps deliveries in process. Useful for tests and dry runs.
type Memory struct {
    mu    sync.Mutex
    files map[string][]byte
    order []string
}

func NewMemory() *Memory { return &Memory{files: map[string][]byte{}} }

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Deliver(ctx context.Context, jobID, name string, data []byte) (string, error) {
    if err := ctx.Err(); err != nil { return "", err }
    loc := fmt.Sprintf("memory://%s/%s", jobID, name)
    cp := append([]byte(nil), data...)
    m.mu.Lock()
    defer m.mu.Unlock()
    m.files[loc] = cp
    m.order = append(m.order, loc)
    return loc, nil
}

// Get returns the payload stored at loc.
func (m *Memory) Get(loc string) ([]byte, bool) {
    m.mu.Lock()
    defer m.mu.Unlock()
    b, ok := m.files[loc]
    return b, ok
}

// Locations lists every delivery in arrival order.
func (m *Memory) Locations() []string {
    m.mu.Lock()
    defer m.mu.Unlock()
    return append([]string(nil), m.order...)
}
