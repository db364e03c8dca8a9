package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/Portunus/controller/internal/clock"
	"github.com/BrandonDHaskell/Portunus/controller/internal/config"
	"github.com/BrandonDHaskell/Portunus/controller/internal/db"
	"github.com/BrandonDHaskell/Portunus/controller/internal/grpcapi"
	"github.com/BrandonDHaskell/Portunus/controller/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/controller/internal/hw"
	"github.com/BrandonDHaskell/Portunus/controller/internal/hw/periphio"
	"github.com/BrandonDHaskell/Portunus/controller/internal/obs"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/actuator"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/keypad"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/policy"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/reader"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/sqlite"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

const (
	exitConfig   = 1
	exitHardware = 2
	exitJournal  = 3

	shutdownTimeout = 5 * time.Second
)

// exitError carries the process exit code for a startup failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

func fail(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portunus-controller: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.ExitCode())
		}
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		printConfig bool
	)
	flagSet := pflag.NewFlagSet("portunus-controller", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", os.Getenv("PORTUNUS_CONFIG"), "path to a YAML config file (env PORTUNUS_* overrides it)")
	flagSet.StringVar(&logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	flagSet.BoolVar(&printConfig, "print-config", false, "print the effective configuration with secrets redacted and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return fail(exitConfig, "%w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fail(exitConfig, "load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if printConfig {
		out, err := cfg.YAML()
		if err != nil {
			return fail(exitConfig, "render config: %w", err)
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	logger, err := obs.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fail(exitConfig, "logger: %w", err)
	}
	slog.SetDefault(logger)
	logger.Info("starting portunus-controller", "env", cfg.Env, "cards", len(cfg.Access.AllowedCardIDs), "keypad", cfg.Access.PIN != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	// ── Hardware ────────────────────────────────────────────────────────────
	res, err := periphio.Open(periphio.Config{
		RowPins:  cfg.Keypad.RowPins,
		ColPins:  cfg.Keypad.ColPins,
		ServoPin: cfg.Servo.Pin,
		SPI:      cfg.Reader.SPI,
		ResetPin: cfg.Reader.ResetPin,
		IRQPin:   cfg.Reader.IRQPin,
	})
	if err != nil {
		return fail(exitHardware, "hardware init: %w", err)
	}

	act := actuator.New(res.Servo, actuator.Config{
		FrequencyHz: cfg.Servo.FrequencyHz,
		UnlockDuty:  cfg.Servo.UnlockDuty,
		LockDuty:    cfg.Servo.LockDuty,
		Settle:      cfg.Servo.Settle(),
		Dwell:       cfg.Servo.Dwell(),
	}, clk, logger, actuator.WithTransitionHook(metrics.LockTransition))
	res.OnClose(act.Close)
	if err := act.Init(); err != nil {
		_ = res.Close()
		return fail(exitHardware, "actuator init: %w", err)
	}
	metrics.LockTransition(types.Locked, act.State())

	layout, err := keypad.ParseLayout(cfg.Keypad.Layout)
	if err != nil {
		_ = res.Close()
		return fail(exitConfig, "keypad layout: %w", err)
	}
	active := hw.Low
	if cfg.Keypad.ActiveHigh {
		active = hw.High
	}
	scanner, err := keypad.NewScanner(res.Rows, res.Cols, keypad.ScannerConfig{
		Layout:      layout,
		ActiveLevel: active,
		Debounce:    cfg.Keypad.Debounce(),
		Interval:    cfg.Keypad.ScanInterval(),
	}, clk, logger)
	if err != nil {
		_ = res.Close()
		return fail(exitHardware, "keypad init: %w", err)
	}

	// ── Journal ─────────────────────────────────────────────────────────────
	journal, closeJournal, err := openJournal(ctx, cfg.Journal, logger)
	if err != nil {
		_ = res.Close()
		return fail(exitJournal, "journal: %w", err)
	}
	defer closeJournal()

	pruner := service.NewEventPruner(journal, service.PrunerConfig{
		RetentionDays: cfg.Journal.RetentionDays,
		IntervalHours: cfg.Journal.PruneIntervalHours,
	}, clk, metrics, logger)
	if cfg.Journal.Enabled {
		pruner.Start(ctx)
		defer pruner.Stop()
	}

	// ── Controller ──────────────────────────────────────────────────────────
	set := policy.NewAuthorizationSet(cfg.Access.AllowedCardIDs, cfg.Access.PIN)
	deps := service.ControllerDeps{
		Access:           service.NewAccessService(set, journal, clk, metrics, logger),
		Cards:            reader.New(res.Reader, cfg.Reader.ReadTimeout()),
		CodeLength:       cfg.Access.CodeLength,
		Actuator:         act,
		Resources:        res,
		ReadErrorBackoff: cfg.Reader.ErrorBackoff(),
		CardPollInterval: cfg.Reader.PollInterval(),
		Clock:            clk,
		Metrics:          metrics,
		Logger:           logger,
	}
	if cfg.Access.PIN != "" {
		deps.Keys = scanner
	}
	controller := service.NewAccessController(deps)

	// ── Status surfaces ─────────────────────────────────────────────────────
	var httpSrv *httpapi.Server
	if cfg.Status.HTTPAddr != "" {
		httpSrv = httpapi.NewServer(httpapi.Dependencies{
			Logger:   logger,
			Addr:     cfg.Status.HTTPAddr,
			Status:   controller,
			Journal:  journal,
			Gatherer: reg,
		})
		go func() {
			logger.Info("status http listening", "addr", cfg.Status.HTTPAddr)
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status http server", "error", err)
			}
		}()
	}

	var grpcSrv *grpcapi.Server
	if cfg.Status.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Status.GRPCAddr)
		if err != nil {
			logger.Error("status grpc listen", "addr", cfg.Status.GRPCAddr, "error", err)
		} else {
			grpcSrv = grpcapi.NewServer(grpcapi.NewService(controller, journal, nil, logger), logger)
			go func() {
				if err := grpcSrv.Serve(lis); err != nil {
					logger.Error("status grpc server", "error", err)
				}
			}()
		}
	}

	err = controller.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if httpSrv != nil {
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	if grpcSrv != nil {
		grpcSrv.Stop(shutdownCtx)
	}

	logger.Info("portunus-controller stopped", "state", act.State())
	return err
}

// openJournal returns the sqlite journal, or a bounded in-memory one when
// the journal is disabled so the status surfaces still list recent
// events.
func openJournal(ctx context.Context, cfg config.JournalConfig, logger *slog.Logger) (store.AccessEventStore, func(), error) {
	if !cfg.Enabled {
		logger.Info("journal disabled, keeping recent events in memory")
		return memory.NewBoundedAccessEventStore(500), func() {}, nil
	}

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, nil, err
	}
	writer := db.NewWorker(conn)
	logger.Info("journal open", "path", cfg.DBPath)

	closeFn := func() {
		writer.Close()
		if err := conn.Close(); err != nil {
			logger.Warn("close journal", "error", err)
		}
	}
	return sqlite.NewAccessEventStore(conn, writer), closeFn, nil
}
