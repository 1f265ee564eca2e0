// Package cliui holds the styles and terminal helpers shared by the
// streamline commands.
package cliui

import (
	"fmt"
	"io"
	"os"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	HeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	KeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	NameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("215")).Bold(true)
	HashStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	WarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	UserPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	AssistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step runs fn under msg and ends with one line holding a ✓ or ✗ and the
// elapsed time. On a terminal a spinner animates while fn runs; other
// writers only get the final line.
func Step(w io.Writer, msg string, fn func() error) error {
	start := time.Now()

	var err error
	if f, ok := w.(*os.File); ok && IsTerminal(f) {
		err = spin(w, msg, fn)
	} else {
		err = fn()
	}

	fmt.Fprintf(w, "  %s %s %s\n",
		Mark(err),
		msg,
		StepStyle.Render("("+FormatDuration(time.Since(start))+")"),
	)
	return err
}

// spin draws spinner frames on w until fn returns, then clears the line.
func spin(w io.Writer, msg string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		fmt.Fprintf(w, "\r  %s %s", spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]), msg)
		select {
		case err := <-done:
			fmt.Fprint(w, "\r\033[K")
			return err
		case <-ticker.C:
		}
	}
}

// Mark is SuccessMark for a nil error and FailMark otherwise.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration renders d as milliseconds below one second ("12ms") and as
// seconds with one decimal above ("3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderMarkdown renders a completion for the terminal with glamour, wrapped
// at 100 columns. On failure the raw content is returned with the error.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
		glamour.WithEmoji(),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ReadSecret prompts on w and reads a line from f without echo when f is a
// terminal. Non-terminal input is read as a plain line.
func ReadSecret(w io.Writer, f *os.File, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	defer fmt.Fprintln(w)

	if IsTerminal(f) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", fmt.Errorf("reading secret: %w", err)
		}
		return string(b), nil
	}

	var line string
	if _, err := fmt.Fscanln(f, &line); err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return line, nil
}
