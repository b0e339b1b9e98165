package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Detail is one key/value row in a result box.
type Detail struct {
	Key   string
	Value string
}

// Printer writes styled output for one-shot commands.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// SetWidth overrides the detected terminal width.
func (p *Printer) SetWidth(width int) *Printer {
	p.width = clampWidth(width)
	return p
}

// Width returns the width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details []Detail) {
	p.Println(RenderSuccessBox(title, details, p.width))
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(RenderErrorBox(title, err, troubleshooting, p.width))
}

// RenderSuccessBox renders a success result box
func RenderSuccessBox(title string, details []Detail, width int) string {
	lines := []string{
		SuccessTitleStyle.Render(SuccessMarker + "  " + title),
		"",
	}
	lines = append(lines, renderDetails(details)...)
	return SuccessBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderErrorBox renders an error result box with troubleshooting
func RenderErrorBox(title string, err error, troubleshooting []string, width int) string {
	lines := []string{
		ErrorTitleStyle.Render(FailureMarker + "  " + title),
		"",
	}

	if err != nil {
		lines = append(lines, ErrorMessageStyle.Render("Error: "+err.Error()), "")
	}

	if len(troubleshooting) > 0 {
		troubleLines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
		for _, tip := range troubleshooting {
			troubleLines = append(troubleLines, TroubleshootingItemStyle.Render("• "+tip))
		}
		lines = append(lines, TroubleshootingBoxStyle(width).Render(strings.Join(troubleLines, "\n")))
	}

	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// SplitHint turns a multi-line troubleshooting hint into bullet items.
func SplitHint(hint string) []string {
	var items []string
	for _, line := range strings.Split(hint, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "•-*"))
		if line == "" || line == "Troubleshooting:" {
			continue
		}
		items = append(items, line)
	}
	return items
}

func renderDetails(details []Detail) []string {
	lines := make([]string, 0, len(details))
	for _, d := range details {
		lines = append(lines, KeyStyle.Render(d.Key+":")+" "+ValueStyle.Render(d.Value))
	}
	return lines
}
