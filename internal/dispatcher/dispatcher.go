package dispatcher

import (
    "context"
    "time"

    "github.com/rs/zerolog"
    "golang.org/x/time/rate"

    "github.com/local/pdfassembly/internal/assembly"
    logpkg "github.com/local/pdfassembly/internal/logger"
    mpkg "github.com/local/pdfassembly/internal/metrics"
)

const DefaultDelay = 100 * time.Millisecond

// Sink is the host-provided delivery surface. Deliver returns where the output went
// (a path, an object URL) for the job record.
type Sink interface {
    Name() string
    Deliver(ctx context.Context, jobID, name string, data []byte) (string, error)
}

type Options struct {
    // Delay is the minimum spacing between two deliveries, across batches.
    Delay time.Duration
    // Retries is the number of extra attempts for transient sink errors.
    Retries int
}

// Dispatcher hands finished outputs to a sink one at a time.
type Dispatcher struct {
    sink    Sink
    opts    Options
    limiter *rate.Limiter
    log     zerolog.Logger
}

func New(sink Sink, opts Options) *Dispatcher {
    if opts.Delay <= 0 { opts.Delay = DefaultDelay }
    if opts.Retries < 0 { opts.Retries = 0 }
    return &Dispatcher{
        sink:    sink,
        opts:    opts,
        limiter: rate.NewLimiter(rate.Every(opts.Delay), 1),
        log:     logpkg.Component("dispatcher").With().Str("sink", sink.Name()).Logger(),
    }
}

// Delivery is the outcome for one output.
type Delivery struct {
    Name     string
    Location string
    Err      error
}

type Report struct {
    Deliveries []Delivery
}

// Delivered returns the number of successful deliveries.
func (r Report) Delivered() int {
    n := 0
    for _, d := range r.Deliveries { if d.Err == nil { n++ } }
    return n
}

// Failed returns the failed deliveries.
func (r Report) Failed() []Delivery {
    var out []Delivery
    for _, d := range r.Deliveries { if d.Err != nil { out = append(out, d) } }
    return out
}

// Dispatch delivers outputs strictly in order. A failed delivery does not stop the
// batch; cancellation does, and the undelivered remainder is left out of the report.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string, outputs []assembly.Output) Report {
    var rep Report
    for i, out := range outputs {
        if ctx.Err() != nil {
            d.log.Warn().Str("job_id", jobID).Int("remaining", len(outputs)-i).Msg("dispatch cancelled")
            mpkg.IncDelivery(d.sink.Name(), "cancelled")
            return rep
        }
        loc, attempts, err := d.deliver(ctx, jobID, out)
        if err != nil {
            if ctx.Err() != nil {
                mpkg.IncDelivery(d.sink.Name(), "cancelled")
                return rep
            }
            derr := &DispatchError{Name: out.Name, Attempts: attempts, Err: err}
            d.log.Error().Err(err).Str("job_id", jobID).Str("part", out.Name).Int("attempts", attempts).Msg("delivery failed")
            mpkg.IncDelivery(d.sink.Name(), "failed")
            rep.Deliveries = append(rep.Deliveries, Delivery{Name: out.Name, Err: derr})
            continue
        }
        d.log.Info().Str("job_id", jobID).Str("part", out.Name).Str("location", loc).Int("bytes", len(out.Data)).Msg("output delivered")
        mpkg.IncDelivery(d.sink.Name(), "delivered")
        rep.Deliveries = append(rep.Deliveries, Delivery{Name: out.Name, Location: loc})
    }
    return rep
}

func (d *Dispatcher) deliver(ctx context.Context, jobID string, out assembly.Output) (string, int, error) {
    var lastErr error
    attempts := 0
    for attempts <= d.opts.Retries {
        if err := d.limiter.Wait(ctx); err != nil { return "", attempts, err }
        attempts++
        loc, err := d.sink.Deliver(ctx, jobID, out.Name, out.Data)
        if err == nil { return loc, attempts, nil }
        lastErr = err
        if !isTransientError(err) { break }
        if attempts <= d.opts.Retries {
            mpkg.IncDelivery(d.sink.Name(), "retried")
            d.log.Warn().Err(err).Str("job_id", jobID).Str("part", out.Name).Int("attempt", attempts).Msg("transient delivery error; retrying")
        }
    }
    return "", attempts, lastErr
}
