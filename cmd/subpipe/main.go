// Command subpipe is the subtitle acquisition server: it resolves video
// sources, downloads or transcribes their speech, and serves SRT subtitles
// over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saccohuo/subpipe/internal/asr"
	"github.com/saccohuo/subpipe/internal/audio"
	"github.com/saccohuo/subpipe/internal/config"
	"github.com/saccohuo/subpipe/internal/cookies"
	"github.com/saccohuo/subpipe/internal/fileinfo"
	"github.com/saccohuo/subpipe/internal/health"
	"github.com/saccohuo/subpipe/internal/hotword"
	"github.com/saccohuo/subpipe/internal/observe"
	"github.com/saccohuo/subpipe/internal/pipeline"
	"github.com/saccohuo/subpipe/internal/readwise"
	"github.com/saccohuo/subpipe/internal/resolver"
	"github.com/saccohuo/subpipe/internal/server"
	"github.com/saccohuo/subpipe/internal/translate"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "subpipe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "subpipe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("subpipe starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	metricsShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "subpipe",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsShutdown(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	// ── Working directories ───────────────────────────────────────────────────
	for _, dir := range []string{cfg.App.UploadFolder, cfg.App.OutputFolder} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create working directory", "dir", dir, "err", err)
			return 1
		}
	}

	// ── Source resolver ───────────────────────────────────────────────────────
	cookieArgs, err := cookies.New(cfg.Cookies).Resolve()
	if err != nil {
		slog.Error("failed to resolve cookie configuration", "err", err)
		return 1
	}
	meta := resolver.NewYtDlp(resolver.WithCookies(resolver.CookieArgs{
		File:           cookieArgs.File,
		BrowserProfile: cookieArgs.BrowserProfile,
	}))
	res := resolver.New(meta, cfg.App.UploadFolder)

	// ── ASR backend pool ──────────────────────────────────────────────────────
	pool := buildPool(cfg)

	// ── Translation chain ─────────────────────────────────────────────────────
	var router *translate.Router
	entries, err := translate.BuildServices(cfg)
	if err != nil {
		slog.Error("failed to build translation services", "err", err)
		return 1
	}
	if len(entries) > 0 {
		router, err = translate.NewRouter(cfg.Translation, entries)
		if err != nil {
			slog.Error("failed to build translation router", "err", err)
			return 1
		}
		slog.Info("translation chain ready", "providers", router.Providers())
	} else {
		slog.Warn("no translation providers configured, translation disabled")
	}

	// ── Hotwords ──────────────────────────────────────────────────────────────
	settings, err := hotword.OpenSettings(cfg.Hotwords.SettingsPath)
	if err != nil {
		slog.Error("failed to open hotword settings", "err", err)
		return 1
	}
	generator := hotword.NewGenerator(hotword.LoadCategories(cfg.Hotwords.CategoryFiles))
	ppOpts := []hotword.PostProcessorOption{}
	if cfg.Hotwords.SimilarityThreshold > 0 {
		ppOpts = append(ppOpts, hotword.WithSimilarityThreshold(cfg.Hotwords.SimilarityThreshold))
	}
	if len(cfg.Hotwords.Replacements) > 0 {
		ppOpts = append(ppOpts, hotword.WithReplacements(cfg.Hotwords.Replacements))
	}

	// ── Persistence and egress ────────────────────────────────────────────────
	store, err := fileinfo.Open(cfg.App.OutputFolder + "/fileinfo.json")
	if err != nil {
		slog.Error("failed to open file record store", "err", err)
		return 1
	}
	rw := readwise.New(cfg.Tokens.Readwise)
	if rw != nil {
		slog.Info("readwise egress enabled")
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	procOpts := []pipeline.Option{
		pipeline.WithHotwords(generator, settings, ppOpts...),
		pipeline.WithFileStore(store),
		pipeline.WithReadwise(rw),
	}
	if router != nil {
		procOpts = append(procOpts, pipeline.WithTranslator(router))
	}
	proc := pipeline.New(res, &audio.Converter{}, pool, cfg.App.OutputFolder, procOpts...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	healthHandler := health.New(
		health.DirWritable("upload_dir", cfg.App.UploadFolder),
		health.DirWritable("output_dir", cfg.App.OutputFolder),
		poolChecker(pool),
	)
	srvOpts := []server.Option{
		server.WithSettingsAPI(settings),
		server.WithFileInfoAPI(store),
		server.WithHealth(healthHandler),
	}
	if router != nil {
		srvOpts = append(srvOpts, server.WithTranslateAPI(router))
	}
	srv := server.New(cfg.App, proc, srvOpts...)

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx, cfg.Server.ListenAddr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped at build time via -ldflags.
var version = "dev"

// buildPool constructs the ASR backend pool from configuration, falling back
// to the default URL when no servers are listed.
func buildPool(cfg *config.Config) *asr.Pool {
	var clientOpts []asr.ClientOption
	if cfg.Servers.Transcribe.Timeout > 0 {
		clientOpts = append(clientOpts, asr.WithChunkTimeout(cfg.Servers.Transcribe.Timeout))
	}

	servers := cfg.Servers.Transcribe.Servers
	if len(servers) == 0 && cfg.Servers.Transcribe.DefaultURL != "" {
		servers = []config.TranscribeServer{{Name: "default", URL: cfg.Servers.Transcribe.DefaultURL}}
	}

	entries := make([]asr.PoolEntry, 0, len(servers))
	for _, s := range servers {
		entries = append(entries, asr.PoolEntry{
			Client:   asr.NewClient(s.Name, s.URL, clientOpts...),
			Priority: s.Priority,
		})
	}
	return asr.NewPool(entries)
}

// poolChecker adapts the ASR pool's readiness probe into a health checker.
func poolChecker(pool *asr.Pool) health.Checker {
	return health.Checker{
		Name: "transcribe_pool",
		Check: func(ctx context.Context) error {
			return pool.Ready(ctx)
		},
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
