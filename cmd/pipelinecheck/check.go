// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/AleutianAI/pipelinecheck/pkg/logging"
	"github.com/AleutianAI/pipelinecheck/services/pipeline"
	"github.com/AleutianAI/pipelinecheck/services/pipeline/config"
)

type checkOptions struct {
	configPath  string
	file        string
	json        bool
	detail      bool
	failOnCycle bool
}

// runCheck validates one pipeline document and prints the verdict.
//
// # Description
//
// Decoding, schema validation and the duplicate-id policy are the same as
// POST /pipelines/parse, so a file that passes here is accepted by the
// server configured from the same config file.
//
// # Outputs
//
//   - error: *exitError with CLIExitError for unreadable or invalid input,
//     CLIExitFindings for a cycle under --fail-on-cycle. Nil otherwise.
func runCheck(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, opts checkOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return &exitError{code: CLIExitError, err: fmt.Errorf("load config: %w", err)}
	}

	in := stdin
	if opts.file != "" && opts.file != "-" {
		f, err := os.Open(opts.file)
		if err != nil {
			return &exitError{code: CLIExitError, err: err}
		}
		defer f.Close()
		in = f
	}

	logger := logging.New(logging.Config{
		Level:   logging.LevelWarn,
		Service: cfg.Telemetry.ServiceName,
		Output:  stderr,
	})
	svc := pipeline.NewService(
		pipeline.WithDuplicatePolicy(cfg.Validation.DuplicateNodeIDs),
		pipeline.WithLogger(logger),
	)

	out := newPrinter(stdout, opts.json)

	req, rerr := pipeline.DecodePipeline(in)
	if rerr == nil {
		var resp *pipeline.PipelineResponse
		resp, rerr = svc.Analyze(ctx, req, opts.detail)
		if rerr == nil {
			if err := out.result(resp); err != nil {
				return &exitError{code: CLIExitError, err: err}
			}
			if opts.failOnCycle && !resp.IsDAG {
				return &exitError{code: CLIExitFindings}
			}
			return nil
		}
	}

	if opts.json {
		if err := out.failure(rerr); err != nil {
			return &exitError{code: CLIExitError, err: err}
		}
		return &exitError{code: CLIExitError}
	}
	return &exitError{code: CLIExitError, err: fmt.Errorf("%s: %s", rerr.Code, rerr.Message)}
}
