package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/seikosantana/modbus-sim/internal/rules"
	"github.com/seikosantana/modbus-sim/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional, defaults to the latest run
	Register int    // -1 for every register
	Limit    int
	ListRuns bool
}

// TraceResult holds the mutations of one run.
type TraceResult struct {
	Run       store.Run        `json:"run"`
	Mutations []store.Mutation `json:"mutations"`
	Total     int              `json:"total"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled register mutations",
		Long: `Read the mutation journal written by serve --journal.

Shows every register change of a run in execution order. Without --run
the most recent run is shown.

Examples:
  modbussim trace --db ./journal.db --runs
  modbussim trace --db ./journal.db
  modbussim trace --db ./journal.db --run 0190f0c4-... --register 10
  modbussim trace --db ./journal.db --limit 20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to journal database (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest run)")
	cmd.Flags().IntVar(&opts.Register, "register", -1, "only show changes to this register")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of mutations (0 = all)")
	cmd.Flags().BoolVar(&opts.ListRuns, "runs", false, "list runs instead of mutations")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// Opening would create an empty journal.
	if _, err := os.Stat(opts.Database); errors.Is(err, fs.ErrNotExist) {
		msg := fmt.Sprintf("journal not found: %s", opts.Database)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	ctx := cmd.Context()

	if opts.ListRuns {
		runs, err := st.ReadRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		if opts.Format == "json" {
			return formatter.Success(runs)
		}
		outputRunsText(formatter.Writer, runs)
		return nil
	}

	var run store.Run
	if opts.RunID != "" {
		run, err = st.ReadRun(ctx, opts.RunID)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if errors.Is(err, sql.ErrNoRows) {
		msg := "no runs recorded"
		if opts.RunID != "" {
			msg = fmt.Sprintf("run not found: %s", opts.RunID)
		}
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	formatter.VerboseLog("Tracing run %s", run.ID)

	filter := store.MutationFilter{RunID: run.ID, Limit: opts.Limit}
	if opts.Register >= 0 {
		reg := opts.Register
		filter.Register = &reg
	}
	mutations, err := st.ReadMutations(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read mutations", err)
	}
	total, err := st.CountMutations(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count mutations", err)
	}

	result := TraceResult{Run: run, Mutations: mutations, Total: total}
	if opts.Format == "json" {
		return formatter.encode(CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	outputTraceText(formatter.Writer, result)
	return nil
}

func outputRunsText(w io.Writer, runs []store.Run) {
	fmt.Fprintln(w, "=== Runs ===")
	if len(runs) == 0 {
		fmt.Fprintln(w, "  (no runs)")
		return
	}
	for _, run := range runs {
		fmt.Fprintf(w, "  %s  %s  %s  %d rule(s) %s  %s\n",
			run.ID, run.StartedAt.Format(time.RFC3339), endpoint(run), run.RuleCount,
			rules.ShortFingerprint(run.Fingerprint), endStatus(run))
	}
}

func outputTraceText(w io.Writer, result TraceResult) {
	run := result.Run
	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "Started: %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Endpoint: %s\n", endpoint(run))
	fmt.Fprintf(w, "Status: %s\n", endStatus(run))
	fmt.Fprintf(w, "Fingerprint: %s\n", run.Fingerprint)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Rules ===")
	if len(run.Rules) == 0 {
		fmt.Fprintln(w, "  (serve only)")
	}
	for i, r := range run.Rules {
		fmt.Fprintf(w, "  %d. %s\n", i+1, r)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Mutations ===")
	if len(result.Mutations) == 0 {
		fmt.Fprintln(w, "  (no mutations)")
	}
	for _, m := range result.Mutations {
		fmt.Fprintf(w, "  [%d] rule %d reg %d: %d -> %d  %s\n",
			m.Seq, m.Position, m.Register, m.Old, m.New, m.At.Format(time.RFC3339Nano))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Shown: %d\n", len(result.Mutations))
	fmt.Fprintf(w, "  Total: %d\n", result.Total)
}

func endpoint(run store.Run) string {
	return net.JoinHostPort(run.BindAddress, strconv.Itoa(run.Port))
}

func endStatus(run store.Run) string {
	if run.EndedAt == nil {
		return "running"
	}
	if run.EndReason == "" {
		return "ended"
	}
	return "ended (" + run.EndReason + ")"
}
