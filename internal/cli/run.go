package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/mqlua"
	"github.com/aretw0/mqlua/internal/config"
	"github.com/aretw0/mqlua/internal/logging"
	adminhttp "github.com/aretw0/mqlua/pkg/adapters/http"
	"github.com/aretw0/mqlua/pkg/adapters/file"
	"github.com/aretw0/mqlua/pkg/adapters/redis"
	"github.com/aretw0/mqlua/pkg/marshal"
	"github.com/aretw0/mqlua/pkg/observability"
	"github.com/aretw0/mqlua/pkg/ports"
)

// RunOptions contains everything the root command resolved from flags and
// the configuration file.
type RunOptions struct {
	Config config.Config
	Path   string
	Args   []string

	// Stdin and Stdout are used by interactive mode. Nil means os.Stdin and os.Stdout.
	Stdin  io.Reader
	Stdout io.Writer
	// Stderr receives diagnostics. Nil means os.Stderr.
	Stderr io.Writer
}

// Execute runs the control program, the optional console and the final
// housekeeping drain. A non-nil error means the process should exit 1.
func Execute(opts RunOptions) error {
	cfg := opts.Config
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	logger, err := createLogger(cfg.Log, opts.Stderr)
	if err != nil {
		return err
	}

	source, closeSource, err := createSource(cfg.Loader)
	if err != nil {
		return err
	}
	defer closeSource()

	globals, err := cfg.GlobalsTable()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	rtOpts := []mqlua.Option{
		mqlua.WithLogger(logger),
		mqlua.WithSource(source),
		mqlua.WithHousekeeping(cfg.Housekeeping),
		mqlua.WithLifecycleHooks(observability.Chain(metrics.Hooks(), observability.LogHooks(logger))),
		mqlua.WithMaxNodes(cfg.Limits.MaxNodes),
		mqlua.WithLimits(marshal.Limits{MaxDepth: cfg.Limits.MaxDepth, MaxValues: cfg.Limits.MaxValues}),
		mqlua.WithCompileCache(cfg.Loader.Cache),
	}
	if globals != nil {
		rtOpts = append(rtOpts, mqlua.WithGlobals(globals))
	}

	// Nodes and their sockets live until Shutdown, independent of signals.
	rt, err := mqlua.New(context.Background(), rtOpts...)
	if err != nil {
		return err
	}

	if cfg.Admin.Addr != "" {
		adminCtx, stopAdmin := context.WithCancel(context.Background())
		defer stopAdmin()
		if err := startAdmin(adminCtx, cfg.Admin.Addr, metrics, rt, logger); err != nil {
			_ = rt.Close()
			return err
		}
	}

	sigCtx := NewSignalContext(context.Background())
	if err := rt.Run(sigCtx, opts.Path, opts.Args); err != nil {
		sigCtx.Cancel()
		_ = rt.Close()
		return err
	}

	if cfg.Interactive {
		console := NewConsole(rt, opts.Stdin, opts.Stdout)
		console.Run(sigCtx)
	}

	// Give SIGINT its default behavior back: a node that never returns keeps
	// Shutdown waiting, and the user must still be able to kill the process.
	sigCtx.Cancel()

	logger.Debug("shutting down", "housekeeping", rt.Tracking())
	return rt.Shutdown()
}

func createLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(w, level, cfg.Format), nil
}

// createSource selects the program loader. The returned func releases it.
func createSource(cfg config.LoaderConfig) (ports.ProgramSource, func(), error) {
	switch cfg.Kind {
	case "", config.LoaderFile:
		return file.NewLoader(cfg.BaseDir), func() {}, nil
	case config.LoaderRedis:
		l := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTimeout(cfg.Redis.Timeout),
		)
		return l, func() { _ = l.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown loader kind %q", cfg.Kind)
	}
}

func startAdmin(ctx context.Context, addr string, metrics *observability.Metrics, rt *mqlua.Runtime, logger *slog.Logger) error {
	handler := adminhttp.NewHandler(metrics, func() adminhttp.Status {
		return adminhttp.Status{
			Version:  mqlua.Version,
			Tracking: rt.Tracking(),
			Active:   metrics.Snapshot().Active,
		}
	})
	srv := adminhttp.NewServer(addr, handler, adminhttp.WithLogger(logger))
	if _, err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start admin endpoint: %w", err)
	}
	return nil
}
