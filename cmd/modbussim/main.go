package main

import (
	"fmt"
	"os"

	"github.com/tebeka/atexit"

	"github.com/seikosantana/modbus-sim/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		atexit.Exit(cli.GetExitCode(err))
	}
	atexit.Exit(cli.ExitSuccess)
}
