// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Theme is the terminal palette. Colors are ANSI 256-color codes.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color
	Header     lipgloss.Color

	StatusSuccess lipgloss.Color
	StatusFailure lipgloss.Color
	StatusSkipped lipgloss.Color
	StatusRunning lipgloss.Color

	Added   lipgloss.Color
	Removed lipgloss.Color
	Warning lipgloss.Color
}

// DefaultTheme suits dark terminals.
var DefaultTheme = Theme{
	NormalText:    lipgloss.Color("252"),
	FaintText:     lipgloss.Color("243"),
	Header:        lipgloss.Color("75"),
	StatusSuccess: lipgloss.Color("114"),
	StatusFailure: lipgloss.Color("203"),
	StatusSkipped: lipgloss.Color("179"),
	StatusRunning: lipgloss.Color("75"),
	Added:         lipgloss.Color("114"),
	Removed:       lipgloss.Color("203"),
	Warning:       lipgloss.Color("179"),
}

// Painter renders styled text, or plain text when the destination is
// not a terminal.
type Painter struct {
	Theme Theme
	Color bool
}

// NewPainter returns a Painter for w with DefaultTheme. Colour is on
// only when w is a terminal.
func NewPainter(w io.Writer) Painter {
	color := false
	if file, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(file.Fd()))
	}
	return Painter{Theme: DefaultTheme, Color: color}
}

// Paint renders text in color.
func (p Painter) Paint(color lipgloss.Color, text string) string {
	if !p.Color {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

// Bold renders text bold in color.
func (p Painter) Bold(color lipgloss.Color, text string) string {
	if !p.Color {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(text)
}
