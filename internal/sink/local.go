package sink

import (
    "context"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/rs/zerolog/log"
)

// Local writes outputs to <Dir>/<jobID>/<name> and returns the file path.
// Dir defaults to ./uploads/results.
type Local struct {
    Dir string
}

func NewLocal(dir string) *Local {
    if dir == "" { dir = filepath.Join("uploads", "results") }
    return &Local{Dir: dir}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Deliver(ctx context.Context, jobID, name string, data []byte) (string, error) {
    if err := ctx.Err(); err != nil { return "", err }
    base := filepath.Base(name)
    if base == "." || base == string(filepath.Separator) || strings.HasPrefix(base, "..") {
        return "", fmt.Errorf("invalid output name %q", name)
    }
    dir := l.JobDir(jobID)
    if err := os.MkdirAll(dir, 0o755); err != nil { return "", err }
    p := filepath.Join(dir, base)
    tmp := p + ".part"
    if err := os.WriteFile(tmp, data, 0o644); err != nil { return "", err }
    if err := os.Rename(tmp, p); err != nil { _ = os.Remove(tmp); return "", err }
    return p, nil
}

// JobDir is the directory holding every output of jobID.
func (l *Local) JobDir(jobID string) string { return filepath.Join(l.Dir, filepath.Base(jobID)) }

// Cleanup removes job directories not modified within maxAge and returns how many went.
func (l *Local) Cleanup(maxAge time.Duration) int {
    entries, err := os.ReadDir(l.Dir)
    if err != nil { return 0 }
    now := time.Now()
    removed := 0
    for _, e := range entries {
        if !e.IsDir() { continue }
        info, err := e.Info()
        if err != nil { continue }
        if now.Sub(info.ModTime()) < maxAge { continue }
        if err := os.RemoveAll(filepath.Join(l.Dir, e.Name())); err != nil {
            log.Warn().Err(err).Str("dir", e.Name()).Msg("cleanup: remove failed")
            continue
        }
        removed++
    }
    if removed > 0 { log.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("cleaned up stale results") }
    return removed
}
