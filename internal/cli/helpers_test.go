package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validConfig = `
ModbusSettings:
  Port: 5020
  BindAddress: 127.0.0.1
Rules:
  SimpleIncrementRules:
    - StartReg: 1
      InitialValue: 0
      MaxValue: 3
      DelaySeconds: 5
    - StartReg: 10
      EndReg: 12
      InitialValue: 0
      MaxValue: 2
      DelaySeconds: 2
`

const invalidConfig = `
ModbusSettings:
  Port: 0
Rules:
  SimpleIncrementRules:
    - StartReg: 1
      MaxValue: 3
      DelaySeconds: 5
    - StartReg: 0
      EndReg: 0
      InitialValue: 5
      MaxValue: 2
      DelaySeconds: 0
`

// writeFile writes content to name inside a fresh temp dir.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
