package logger

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "sync"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"

    cfgpkg "github.com/local/pdfassembly/internal/config"
)

const serviceName = "pdfassembly"

// Options defines logger initialization parameters.
type Options struct {
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool

    Environment string

    // Axiom
    SendToAxiom  bool
    AxiomAPIKey  string
    AxiomOrgID   string
    AxiomDataset string
    AxiomFlush   time.Duration
}

// OptionsFrom maps the loaded configuration onto logger options.
func OptionsFrom(cfg cfgpkg.Config) Options {
    return Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        Environment:  cfg.Environment,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    }
}

var ax *axiomClient

// Init sets up global logger: file rotation, console or JSON stdout, optional Axiom forwarding.
func Init(opts Options) error {
    if opts.File != "" {
        if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
            return fmt.Errorf("create logs dir: %w", err)
        }
    }

    var writers []io.Writer
    if opts.File != "" {
        writers = append(writers, &lumberjack.Logger{
            Filename:   opts.File,
            MaxSize:    opts.MaxSizeMB,
            MaxBackups: opts.MaxBackups,
            MaxAge:     opts.MaxAgeDays,
            Compress:   opts.Compress,
        })
    }
    if opts.Pretty {
        writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
    } else {
        writers = append(writers, os.Stdout)
    }

    // Optional Axiom writer (info+)
    if opts.SendToAxiom && opts.AxiomAPIKey != "" {
        client, err := newAxiomClient(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
        if err != nil {
            fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
        } else {
            ax = client
            writers = append(writers, &axiomWriter{sink: client, environment: opts.Environment})
        }
    }

    zerolog.TimeFieldFormat = time.RFC3339
    lvl, err := zerolog.ParseLevel(opts.Level)
    if err != nil || opts.Level == "" {
        lvl = zerolog.InfoLevel
    }

    log.Logger = zerolog.New(io.MultiWriter(writers...)).
        Level(lvl).
        With().Timestamp().Str("service", serviceName).
        Logger()
    return nil
}

// Close flushes any buffered external loggers.
func Close() {
    if ax != nil {
        _ = ax.Close()
        ax = nil
    }
}

// Component returns a child of the global logger tagged with a component name.
func Component(name string) zerolog.Logger {
    return log.With().Str("component", name).Logger()
}

type eventSink interface {
    Send(ev axiom.Event)
}

// axiomWriter forwards zerolog JSON lines to Axiom (dropping debug and trace).
type axiomWriter struct {
    sink        eventSink
    environment string
}

func (w *axiomWriter) Write(p []byte) (int, error) {
    var ev map[string]interface{}
    if err := json.Unmarshal(p, &ev); err != nil {
        ev = map[string]interface{}{"message": string(p), "level": "info"}
    }
    if lvl, ok := ev["level"].(string); ok && (lvl == "debug" || lvl == "trace") {
        return len(p), nil
    }
    if _, ok := ev["service"]; !ok { ev["service"] = serviceName }
    if w.environment != "" { ev["environment"] = w.environment }
    if _, ok := ev[ingest.TimestampField]; !ok {
        ev[ingest.TimestampField] = time.Now()
    }
    w.sink.Send(axiom.Event(ev))
    return len(p), nil
}

// Minimal Axiom batching client
type axiomClient struct {
    client  *axiom.Client
    dataset string
    ch      chan axiom.Event
    wg      sync.WaitGroup
    ctx     context.Context
    cancel  context.CancelFunc
}

const axiomBatch = 200

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration) (*axiomClient, error) {
    if dataset == "" { dataset = "dev_" + serviceName }
    opts := []axiom.Option{axiom.SetToken(token)}
    if orgID != "" { opts = append(opts, axiom.SetOrganizationID(orgID)) }
    c, err := axiom.NewClient(opts...)
    if err != nil { return nil, err }
    ctx, cancel := context.WithCancel(context.Background())
    ac := &axiomClient{
        client:  c,
        dataset: dataset,
        ch:      make(chan axiom.Event, 1000),
        ctx:     ctx,
        cancel:  cancel,
    }
    if flushEvery <= 0 { flushEvery = 10 * time.Second }
    ac.wg.Add(1)
    go ac.loop(flushEvery)
    return ac, nil
}

// Send enqueues ev, dropping it when the buffer is full.
func (a *axiomClient) Send(ev axiom.Event) {
    select {
    case a.ch <- ev:
    default:
    }
}

func (a *axiomClient) loop(flushEvery time.Duration) {
    defer a.wg.Done()
    ticker := time.NewTicker(flushEvery)
    defer ticker.Stop()
    batch := make([]axiom.Event, 0, axiomBatch)
    flush := func() {
        if len(batch) == 0 { return }
        ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        if _, err := a.client.IngestEvents(ctx, a.dataset, batch); err != nil {
            fmt.Fprintf(os.Stderr, "axiom ingest failed (%d events): %v\n", len(batch), err)
        }
        cancel()
        batch = batch[:0]
    }
    for {
        select {
        case <-a.ctx.Done():
            // drain what is already queued
            for {
                select {
                case ev := <-a.ch:
                    batch = append(batch, ev)
                    if len(batch) >= axiomBatch { flush() }
                default:
                    flush()
                    return
                }
            }
        case <-ticker.C:
            flush()
        case ev := <-a.ch:
            batch = append(batch, ev)
            if len(batch) >= axiomBatch { flush() }
        }
    }
}

func (a *axiomClient) Close() error {
    a.cancel()
    a.wg.Wait()
    return nil
}
