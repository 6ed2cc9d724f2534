package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seikosantana/modbus-sim/internal/registers"
	"github.com/seikosantana/modbus-sim/internal/rules"
)

// DefaultRegisters is the bank size of a scenario that does not set one.
const DefaultRegisters = 64

// Scenario defines a rule replay and the assertions on its outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Registers is the bank size. Default: DefaultRegisters.
	Registers int `yaml:"registers,omitempty"`

	// Initial presets register values before the run.
	Initial map[int]int16 `yaml:"initial,omitempty"`

	// Rules is the rule set under test, in execution order.
	Rules rules.RuleSet `yaml:"rules"`

	// Executions is the number of rule executions after which the run is
	// cancelled. 0 cancels right after startup.
	Executions int `yaml:"executions"`

	// Assertions validate the trace and the final bank.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the trace or the final bank.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Register is the register index (register_sequence, final_register).
	Register int `yaml:"register,omitempty"`

	// Values are the expected written values (register_sequence).
	Values []int16 `yaml:"values,omitempty"`

	// Value is the expected final value (final_register).
	Value *int16 `yaml:"value,omitempty"`

	// Positions are the expected rule positions (execution_order).
	Positions []int `yaml:"positions,omitempty"`

	// Offsets are the expected execution times in seconds (execution_times).
	Offsets []int64 `yaml:"offsets,omitempty"`

	// Code is the expected runtime error code, or "none" (error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertRegisterSequence = "register_sequence"
	AssertFinalRegister    = "final_register"
	AssertExecutionOrder   = "execution_order"
	AssertExecutionTimes   = "execution_times"
	AssertError            = "error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields, so "assertion:" vs "assertions:" is caught.
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Registers == 0 {
		scenario.Registers = DefaultRegisters
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
// Rules themselves are not checked here: invalid rules are a legitimate
// scenario whose outcome is INVALID_RULES.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Registers < 1 || s.Registers > registers.MaxRegisters {
		return fmt.Errorf("registers must be between 1 and %d, got %d", registers.MaxRegisters, s.Registers)
	}

	for reg := range s.Initial {
		if reg < 0 || reg >= s.Registers {
			return fmt.Errorf("initial: register %d outside bank of %d", reg, s.Registers)
		}
	}

	if s.Executions < 0 {
		return fmt.Errorf("executions must be non-negative, got %d", s.Executions)
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRegisterSequence:
		if len(a.Values) == 0 {
			return fmt.Errorf("assertions[%d]: values list is required for register_sequence", index)
		}
	case AssertFinalRegister:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for final_register", index)
		}
	case AssertExecutionOrder:
		if a.Positions == nil {
			return fmt.Errorf("assertions[%d]: positions list is required for execution_order", index)
		}
	case AssertExecutionTimes:
		if a.Offsets == nil {
			return fmt.Errorf("assertions[%d]: offsets list is required for execution_times", index)
		}
	case AssertError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error (use \"none\" for a clean stop)", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
