package main

import (
    "context"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/pdfassembly/internal/acquire"
    "github.com/local/pdfassembly/internal/assembly"
    "github.com/local/pdfassembly/internal/codec"
    cfgpkg "github.com/local/pdfassembly/internal/config"
    "github.com/local/pdfassembly/internal/dispatcher"
    logpkg "github.com/local/pdfassembly/internal/logger"
    "github.com/local/pdfassembly/internal/metrics"
    "github.com/local/pdfassembly/internal/orchestrator"
    "github.com/local/pdfassembly/internal/sink"
    "github.com/local/pdfassembly/internal/statuscheck"
    "github.com/local/pdfassembly/internal/storage"
    "github.com/local/pdfassembly/internal/store"
    "github.com/local/pdfassembly/internal/thumbnail"
)

type statusBackend interface {
    Set(ctx context.Context, jobID string, st store.Status) error
    Get(ctx context.Context, jobID string) (store.Status, bool, error)
    Ping(ctx context.Context) error
    Close() error
}

func main() {
    cfgpkg.LoadDotEnv()
    cfg := cfgpkg.FromEnv()

    _ = logpkg.Init(logpkg.OptionsFrom(cfg))
    defer logpkg.Close()
    metrics.Init()

    // Status store
    var status statusBackend
    storeKind := "memory"
    if cfg.RedisURL != "" {
        rs, err := store.NewRedisStatus(cfg.RedisURL, cfg.Server.StatusTTL)
        if err != nil { log.Fatal().Err(err).Msg("failed to init redis status store") }
        status, storeKind = rs, "redis"
    } else {
        log.Warn().Msg("REDIS_URL not set, job status kept in memory")
        status = store.NewMemoryStatus(cfg.Server.StatusTTL)
    }
    defer status.Close()

    // S3 is optional unless outputs are delivered there
    var s3c *storage.Client
    if cfg.Dispatch.Target == "s3" || cfg.Dispatch.S3Bucket != "" {
        c, err := storage.NewClient(context.Background(), cfg.Dispatch.Password)
        switch {
        case err != nil && cfg.Dispatch.Target == "s3":
            log.Fatal().Err(err).Msg("failed to init s3 client")
        case err != nil:
            log.Warn().Err(err).Msg("s3 unavailable, s3 imports disabled")
        default:
            s3c = c
        }
    }

    var (
        out     dispatcher.Sink
        results orchestrator.ResultFiles
        resultDir string
    )
    if cfg.Dispatch.Target == "s3" {
        if cfg.Dispatch.S3Bucket == "" { log.Fatal().Msg("DELIVERY_TARGET=s3 requires AWS_S3_BUCKET") }
        out = sink.NewS3(s3c, cfg.Dispatch.S3Bucket, cfg.Dispatch.S3Prefix)
    } else {
        local := sink.NewLocal(cfg.Dispatch.ResultDir)
        out, results, resultDir = local, local, local.Dir
    }

    deps := orchestrator.Dependencies{
        Status:     orchestrator.NewStatusAdapter(status),
        Engine:     assembly.New(codec.New()),
        Dispatcher: dispatcher.New(out, dispatcher.Options{Delay: cfg.Dispatch.Delay, Retries: cfg.Dispatch.Retries}),
        Thumbnails: thumbnail.New(cfg.Server.ThumbMaxWidth),
        Drive:      acquire.NewDrive(cfg.Sources.DriveBaseURL, int64(cfg.Server.MaxUploadMB)<<20),
        Results:    results,
        Options: orchestrator.Options{
            MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
            JobTimeout:     cfg.Server.JobTimeout,
            ThumbScale:     cfg.Server.ThumbScale,
            ResultMaxAge:   cfg.Dispatch.ResultMaxAge,
            SessionIdle:    cfg.Server.SessionIdle,
        },
    }
    healthOpts := statuscheck.Options{Store: status, StoreKind: storeKind, ResultDir: resultDir}
    if s3c != nil {
        deps.Objects = &acquire.S3{Client: s3c}
        healthOpts.S3, healthOpts.S3Bucket = s3c, cfg.Dispatch.S3Bucket
    }
    deps.Health = statuscheck.New(healthOpts)

    orch := orchestrator.New(deps)
    mux := http.NewServeMux()
    orch.RegisterRoutes(mux)

    janitorCtx, stopJanitor := context.WithCancel(context.Background())
    defer stopJanitor()
    go orch.RunJanitor(janitorCtx, time.Minute)

    srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

    go func(){
        log.Info().Str("target", out.Name()).Str("store", storeKind).Msgf("HTTP server listening on :%s", cfg.Server.Port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = srv.Shutdown(ctx)
    if err := orch.Shutdown(ctx); err != nil { log.Warn().Err(err).Msg("jobs still running at shutdown") }
    fmt.Println("shutdown complete")
}
