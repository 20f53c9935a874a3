// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders CLI output.
//
// Three modes are supported. ModeStyled uses lipgloss colors and boxes and
// is chosen automatically when stdout is a terminal. ModePlain drops all
// escape codes. ModeJSON writes machine-readable documents only.
package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // headings
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconBullet  Icon = "•"
)

// =============================================================================
// Modes
// =============================================================================

// Mode selects how a Printer formats output.
type Mode string

const (
	ModeStyled Mode = "styled"
	ModePlain  Mode = "plain"
	ModeJSON   Mode = "json"
)

// ParseMode maps a flag value to a Mode. "auto" and "" defer to DetectMode.
func ParseMode(s string, out *os.File) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DetectMode(out), nil
	case "styled", "color":
		return ModeStyled, nil
	case "plain", "text":
		return ModePlain, nil
	case "json":
		return ModeJSON, nil
	}
	return "", fmt.Errorf("unknown output mode %q (want auto, styled, plain or json)", s)
}

// DetectMode returns ModeStyled for terminals and ModePlain otherwise.
// NO_COLOR forces plain output.
func DetectMode(f *os.File) Mode {
	if f == nil || os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	fd := f.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return ModeStyled
	}
	return ModePlain
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes formatted lines in one Mode.
//
// Not safe for concurrent use.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter returns a Printer over w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	if mode == "" {
		mode = ModePlain
	}
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode { return p.mode }

// Writer returns the destination.
func (p *Printer) Writer() io.Writer { return p.w }

func (p *Printer) styled() bool { return p.mode == ModeStyled }

func (p *Printer) render(s lipgloss.Style, text string) string {
	if !p.styled() {
		return text
	}
	return s.Render(text)
}

// Title prints a heading. Suppressed in JSON mode.
func (p *Printer) Title(text string) {
	if p.mode == ModeJSON {
		return
	}
	fmt.Fprintln(p.w, p.render(Styles.Title, text))
}

// Success prints a line with a check mark.
func (p *Printer) Success(text string) {
	p.status(IconSuccess, Styles.Success, "OK", text)
}

// Warning prints a line with a warning sign.
func (p *Printer) Warning(text string) {
	p.status(IconWarning, Styles.Warning, "WARN", text)
}

// Error prints a line with a cross.
func (p *Printer) Error(text string) {
	p.status(IconError, Styles.Error, "ERROR", text)
}

func (p *Printer) status(icon Icon, style lipgloss.Style, label, text string) {
	switch p.mode {
	case ModeJSON:
		return
	case ModePlain:
		fmt.Fprintf(p.w, "%s: %s\n", label, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", style.Render(string(icon)), style.Render(text))
	}
}

// Box prints content under a title, boxed in styled mode.
func (p *Printer) Box(title, content string) {
	switch p.mode {
	case ModeJSON:
		return
	case ModePlain:
		fmt.Fprintf(p.w, "%s\n%s\n", title, content)
	default:
		fmt.Fprintln(p.w, Styles.Box.Width(72).Render(Styles.Title.Render(title)+"\n"+content))
	}
}

// JSON writes v as indented JSON regardless of mode.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
