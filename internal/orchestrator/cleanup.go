package orchestrator

import (
    "context"
    "time"

    "github.com/rs/zerolog/log"
)

// RunJanitor evicts idle sessions and expired local results every interval until
// ctx is done.
func (o *Orchestrator) RunJanitor(ctx context.Context, interval time.Duration) {
    if interval <= 0 { interval = time.Minute }
    ticker := time.NewTicker(interval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
            o.sweep()
        }
    }
}

func (o *Orchestrator) sweep() {
    if idle := o.deps.Options.SessionIdle; idle > 0 {
        if n := o.sessions.evictIdle(idle); n > 0 {
            log.Info().Int("sessions", n).Dur("idle", idle).Msg("evicted idle sessions")
        }
    }
    o.cleanupAfterJob()
}

// cleanupAfterJob removes local result directories older than ResultMaxAge.
func (o *Orchestrator) cleanupAfterJob() {
    if o.deps.Results == nil || o.deps.Options.ResultMaxAge <= 0 { return }
    if n := o.deps.Results.Cleanup(o.deps.Options.ResultMaxAge); n > 0 {
        log.Debug().Int("removed", n).Msg("expired results removed")
    }
}
