package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/seikosantana/modbus-sim/internal/config"
	"github.com/seikosantana/modbus-sim/internal/engine"
	"github.com/seikosantana/modbus-sim/internal/logging"
	"github.com/seikosantana/modbus-sim/internal/monitor"
	"github.com/seikosantana/modbus-sim/internal/registers"
	"github.com/seikosantana/modbus-sim/internal/store"
	"github.com/seikosantana/modbus-sim/internal/transport"
)

// ServeOptions holds flags for the serve command. Flags that are set
// override the config file and environment.
type ServeOptions struct {
	*RootOptions
	Config      string
	Port        int
	BindAddress string
	Journal     string
	MonitorPort int
	LogLevel    string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Modbus TCP slave and run the rules",
		Long: `Start the Modbus TCP slave and the rule loop.

The server binds first, then the rules are checked. Any invalid rule
stops the application before a single register is touched. With no
rules configured the registers are served as-is.

Example:
  modbussim serve --config appsettings.json
  modbussim serve --config sim.yaml --port 5020 --journal ./journal.db
  modbussim serve --config sim.cue --monitor-port 8080 --log-level debug`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to config file (.json, .yaml, .cue)")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "modbus tcp port")
	cmd.Flags().StringVar(&opts.BindAddress, "bind", "", "modbus bind address")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite mutation journal")
	cmd.Flags().IntVar(&opts.MonitorPort, "monitor-port", 0, "HTTP monitor port (0 = disabled)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "log level (info|debug|trace)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	applyServeFlags(opts, cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitFailure, "invalid settings", err)
	}

	level := cfg.Logging.Level
	if opts.Verbose && logging.ParseLevel(level) > slog.LevelDebug {
		level = "debug"
	}
	logger := logging.NewLogger(level, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	m := cfg.ModbusSettings
	bank := registers.NewBank(m.RegisterCount)
	srv := transport.NewServer(bank,
		transport.WithTimeout(m.ConnectionTimeout()),
		transport.WithMaxClients(uint(m.MaxClients)),
		transport.WithLogger(logger))

	rs := cfg.Rules.SimpleIncrementRules
	schedOpts := []engine.Option{
		engine.WithEndpoint(m.BindAddress, m.Port),
		engine.WithLogger(logger),
		engine.WithTerminator(&hostTerminator{cancel: cancel, logger: logger}),
	}

	var journal *journalSession
	if cfg.Journal.Path != "" {
		journal, err = openJournal(ctx, cfg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		// Covers exits through atexit.Exit that skip the deferred finish.
		atexit.Register(func() { journal.finish("exited") })
		schedOpts = append(schedOpts, engine.WithRecorder(store.NewRecorder(journal.store, journal.run.ID)))
	}

	sched := engine.New(srv, rs, schedOpts...)

	if cfg.Monitor.Port != 0 {
		mon := monitor.NewMonitor(sched, bank).
			WithPortNumber(cfg.Monitor.Port).
			WithCounters(srv).
			WithLogger(logger)
		if _, err := mon.StartServer(); err != nil {
			if journal != nil {
				journal.finish("monitor failed")
			}
			return WrapExitError(ExitCommandError, "failed to start monitor", err)
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := mon.Shutdown(shutdownCtx); err != nil {
				logger.Error("error stopping monitor", "error", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Simulator starting on %s with %d rule(s).\n",
		net.JoinHostPort(m.BindAddress, strconv.Itoa(m.Port)), len(rs))
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	runErr := sched.Run(ctx)
	if journal != nil {
		journal.finish(endReason(runErr))
	}

	var rerr *engine.RuntimeError
	switch {
	case engine.IsBindError(runErr):
		return WrapExitError(ExitCommandError, "failed to start modbus server", runErr)
	case engine.IsValidationError(runErr):
		return WrapExitError(ExitFailure, "invalid rules", runErr)
	case errors.As(runErr, &rerr):
		return WrapExitError(ExitFailure, "simulation stopped", runErr)
	case runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded):
		return WrapExitError(ExitFailure, "simulation error", runErr)
	}

	logger.Info("simulator stopped gracefully")
	return nil
}

func applyServeFlags(opts *ServeOptions, cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.ModbusSettings.Port = opts.Port
	}
	if flags.Changed("bind") {
		cfg.ModbusSettings.BindAddress = opts.BindAddress
	}
	if flags.Changed("journal") {
		cfg.Journal.Path = opts.Journal
	}
	if flags.Changed("monitor-port") {
		cfg.Monitor.Port = opts.MonitorPort
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.LogLevel
	}
}

func endReason(err error) string {
	var rerr *engine.RuntimeError
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "stopped"
	case errors.As(err, &rerr):
		return string(rerr.Code)
	default:
		return err.Error()
	}
}

// hostTerminator is the engine's view of the application: terminating
// cancels the serve context.
type hostTerminator struct {
	cancel context.CancelFunc
	logger *slog.Logger
}

func (h *hostTerminator) Terminate(reason error) {
	h.logger.Warn("application termination requested", "reason", reason)
	h.cancel()
}

// journalSession is one run in the mutation journal.
type journalSession struct {
	store  *store.Store
	run    store.Run
	logger *slog.Logger
	once   sync.Once
}

func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*journalSession, error) {
	logger.Info("opening journal", "path", cfg.Journal.Path)
	st, err := store.Open(cfg.Journal.Path)
	if err != nil {
		return nil, err
	}

	m := cfg.ModbusSettings
	run, err := st.StartRun(ctx, m.BindAddress, m.Port, cfg.Rules.SimpleIncrementRules, time.Now())
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Info("journal ready", "run", run.ID)

	return &journalSession{store: st, run: run, logger: logger}, nil
}

// finish stamps the run end and closes the journal. Only the first call
// has any effect.
func (j *journalSession) finish(reason string) {
	j.once.Do(func() {
		if err := j.store.FinishRun(context.Background(), j.run.ID, time.Now(), reason); err != nil {
			j.logger.Error("error finishing journal run", "run", j.run.ID, "error", err)
		}
		if err := j.store.Close(); err != nil {
			j.logger.Error("error closing journal", "error", err)
		}
	})
}
