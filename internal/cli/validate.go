package cli

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/seikosantana/modbus-sim/internal/config"
	"github.com/seikosantana/modbus-sim/internal/rules"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid      bool              `json:"valid"`
	Listen     string            `json:"listen,omitempty"`
	Rules      int               `json:"rules"`
	Violations []rules.Violation `json:"violations,omitempty"`
	Settings   []string          `json:"settings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check settings and rules without serving",
		Long: `Load a configuration file and run the same checks serve runs at
startup, without opening the Modbus port.

Every broken rule is reported with its 1-based position.

Examples:
  modbussim validate --config appsettings.json
  modbussim validate --config sim.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		}
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	rs := cfg.Rules.SimpleIncrementRules
	formatter.VerboseLog("Loaded %d rule(s) from %s", len(rs), opts.Config)

	result := checkConfig(cfg)
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result, rs)
}

// checkConfig runs settings and rule validation, collecting everything.
func checkConfig(cfg *config.Config) ValidationResult {
	m := cfg.ModbusSettings
	result := ValidationResult{
		Listen:     net.JoinHostPort(m.BindAddress, strconv.Itoa(m.Port)),
		Rules:      len(cfg.Rules.SimpleIncrementRules),
		Violations: rules.Validate(cfg.Rules.SimpleIncrementRules),
	}
	for _, err := range splitErrors(cfg.Validate()) {
		result.Settings = append(result.Settings, err.Error())
	}
	result.Valid = len(result.Violations) == 0 && len(result.Settings) == 0
	return result
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult, rs rules.RuleSet) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✓ Configuration valid")
	fmt.Fprintf(w, "  listen: %s\n", result.Listen)
	if len(rs) == 0 {
		fmt.Fprintln(w, "  rules: none (serve only)")
		return nil
	}
	fmt.Fprintf(w, "  rules: %d (cycle %s)\n", len(rs), rs.TotalDelay())
	for i, r := range rs {
		fmt.Fprintf(w, "    %d. %s\n", i+1, r)
	}
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	count := len(result.Violations) + len(result.Settings)
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))

	if formatter.Format == "json" {
		code, message := ErrCodeInvalidSettings, ""
		if len(result.Settings) > 0 {
			message = result.Settings[0]
		} else {
			code, message = result.Violations[0].Code, result.Violations[0].Message
		}
		_ = formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    code,
				Message: message,
			},
		})
		return exitErr
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, s := range result.Settings {
		fmt.Fprintf(w, "  %s: %s\n", ErrCodeInvalidSettings, s)
	}
	for _, v := range result.Violations {
		fmt.Fprintf(w, "  %s: at rule %d: %s\n", v.Code, v.Position, v.Message)
	}
	return exitErr
}
