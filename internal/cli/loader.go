package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/seikosantana/modbus-sim/internal/config"
)

// LoadError is a configuration load failure with a CLI error code.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// loadConfig builds the effective configuration for a command. An empty
// path means defaults plus environment, which serves registers with no
// rules.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config file not found: %s", path), Err: err}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config file: %v", err), Err: err}
		}
		if info.IsDir() {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config path is a directory: %s", path)}
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Err: err}
	}
	return cfg, nil
}

// splitErrors flattens an errors.Join result into its members.
func splitErrors(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
