// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command pipelinecheck validates pipeline graphs from the visual editor.
//
// It serves the HTTP API the editor posts to and checks pipeline files
// from the command line:
//
//	pipelinecheck serve --config pipelinecheck.yaml
//	pipelinecheck check pipeline.json --detail
//	cat pipeline.json | pipelinecheck check - --json
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Pipeline has a cycle and --fail-on-cycle was set
	CLIExitError    = 2 // Operation failed
)

// exitError carries a specific exit code out of a command. A nil err means
// the command already reported the problem.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return CLIExitSuccess
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return CLIExitError
}
