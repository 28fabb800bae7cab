package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/fatih/color"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	blue   = color.New(color.FgBlue)
	red    = color.New(color.FgRed)

	out io.Writer = color.Output
)

// SetOutput redirects report lines. Passing nil restores the terminal.
func SetOutput(w io.Writer) {
	if w == nil {
		w = color.Output
	}
	out = w
}

// Header prints a formatted header
func Header(text string) {
	line := strings.Repeat("=", 60)
	green.Fprintf(out, "\n%s\n", line)
	green.Fprintf(out, "%-60s\n", center(text, 60))
	green.Fprintf(out, "%s\n\n", line)
}

// Step prints a step indicator
func Step(stepNum, totalSteps int, text string) {
	yellow.Fprintf(out, "[%d/%d] %s\n", stepNum, totalSteps, text)
}

// Success prints a success message
func Success(text string) {
	green.Fprintf(out, "  → %s\n", text)
}

// Info prints an info message
func Info(text string) {
	fmt.Fprintf(out, "  → %s\n", text)
}

// Warning prints a warning message
func Warning(text string) {
	yellow.Fprintf(out, "  ⚠ %s\n", text)
}

// Error prints an error message
func Error(text string) {
	red.Fprintf(out, "Error: %s\n", text)
}

// BlueText prints blue text
func BlueText(text string) {
	blue.Fprintln(out, text)
}

// Count reports how many transactions a source kind produced
func Count(kind string, n int) {
	Info(fmt.Sprintf("%d %s transaction(s)", n, kind))
}

// Added reports one transaction appended to the ledger
func Added(t *domain.Transaction) {
	BlueText(fmt.Sprintf("Adding %s", t.Description))
	fmt.Fprintf(out, "    %s  %10s  %s\n", t.Date, Amount(t.AmountCents), t.Source)
}

// Total reports the outcome of a merge
func Total(added int) {
	if added == 0 {
		Info("No new transactions")
		return
	}
	Success(fmt.Sprintf("Added %d new transaction(s)", added))
}

// Amount formats minor units as dollars; positive amounts are money spent
func Amount(cents int64) string {
	return money.New(cents, money.USD).Display()
}

// center centers text within a given width
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
