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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AleutianAI/pipelinecheck/services/pipeline"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette.
var (
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#2C4A54")
	colorDarkest = lipgloss.Color("#0F1923")
)

var (
	dagBadgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorDarkest).
			Background(colorSuccess).
			Padding(0, 1)

	cycleBadgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorError).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(16)
)

// printer writes check results as styled text or JSON.
type printer struct {
	w      io.Writer
	json   bool
	styled bool
}

func newPrinter(w io.Writer, jsonMode bool) *printer {
	return &printer{w: w, json: jsonMode, styled: !jsonMode && isTerminal(w)}
}

// isTerminal reports whether w is an interactive terminal. Styling is
// skipped for pipes and files.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) result(resp *pipeline.PipelineResponse) error {
	if p.json {
		return p.encode(resp)
	}

	var b strings.Builder
	b.WriteString(p.badge(resp.IsDAG))
	b.WriteString("\n")
	p.field(&b, "Nodes", fmt.Sprint(resp.NumNodes))
	p.field(&b, "Edges", fmt.Sprint(resp.NumEdges))

	if a := resp.Analysis; a != nil {
		p.field(&b, "Order", joinOrNone(a.TopologicalOrder, " -> "))
		if len(a.CyclicNodes) > 0 {
			p.field(&b, "Cyclic nodes", joinOrNone(a.CyclicNodes, ", "))
		}
		if len(a.DanglingEdges) > 0 {
			p.field(&b, "Dangling edges", joinOrNone(a.DanglingEdges, ", "))
		}
		if len(a.DuplicateNodeIDs) > 0 {
			p.field(&b, "Duplicate ids", joinOrNone(a.DuplicateNodeIDs, ", "))
		}
	}

	_, err := io.WriteString(p.w, b.String())
	return err
}

// failure writes a rejected document as the same ErrorResponse the HTTP
// API returns.
func (p *printer) failure(rerr *pipeline.RequestError) error {
	return p.encode(pipeline.ErrorResponse{Error: rerr.Message, Code: rerr.Code})
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) badge(isDAG bool) string {
	text, style := "Valid DAG", dagBadgeStyle
	if !isDAG {
		text, style = "Not a DAG", cycleBadgeStyle
	}
	if !p.styled {
		return text
	}
	return style.Render(text)
}

func (p *printer) field(b *strings.Builder, label, value string) {
	if p.styled {
		b.WriteString("  " + labelStyle.Render(label+":") + value + "\n")
		return
	}
	fmt.Fprintf(b, "  %-15s %s\n", label+":", value)
}

func joinOrNone(items []string, sep string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, sep)
}
