package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/GoCodeAlone/nexus/task"
)

var title = cases.Title(language.English)

func disableColor() {
	color.NoColor = true
}

func errorMark() string {
	return color.RedString("✗")
}

// printStatus prints a status line with a colored symbol.
func printStatus(w io.Writer, symbol, message string, attr color.Attribute) {
	fmt.Fprintf(w, "%s %s\n", color.New(attr).Sprint(symbol), message)
}

func statusColor(s task.Status) *color.Color {
	switch s {
	case task.StatusCompleted:
		return color.New(color.FgGreen)
	case task.StatusFailed:
		return color.New(color.FgRed)
	case task.StatusRunning:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgYellow)
	}
}

func severityColor(s task.Severity) *color.Color {
	switch s {
	case task.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case task.SeverityWarning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgBlue)
	}
}

// renderEvent prints one stream event as a progress line.
func renderEvent(w io.Writer, ev task.Event) {
	switch ev.Type {
	case task.EventProgress:
		switch ev.Status {
		case task.ProgressStarted:
			printStatus(w, "…", ev.Message, color.FgCyan)
		case task.ProgressCompleted:
			printStatus(w, "✓", ev.Message, color.FgGreen)
		case task.ProgressFailed:
			printStatus(w, "✗", ev.Message, color.FgRed)
		default:
			fmt.Fprintln(w, ev.Message)
		}
	case task.EventError:
		printStatus(w, "✗", "Task failed: "+ev.Error, color.FgRed)
	case task.EventResult:
		printStatus(w, "✓", "Task completed", color.FgGreen)
	}
}

// renderState prints a task's status line.
func renderState(w io.Writer, st *task.State) {
	fmt.Fprintf(w, "Task:    %s\n", st.ID)
	fmt.Fprintf(w, "Action:  %s\n", st.Input.Action)
	fmt.Fprintf(w, "Status:  %s\n", statusColor(st.Status).Sprint(title.String(string(st.Status))))
	fmt.Fprintf(w, "Created: %s\n", st.CreatedAt.Local().Format(time.DateTime))
	if n := len(st.SubtaskResults); n > 0 {
		fmt.Fprintf(w, "Agents finished: %d\n", n)
	}
	if st.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", color.RedString(st.Error))
	}
}

// renderResult prints a merged result: summary, findings and totals.
func renderResult(w io.Writer, r *task.Result) {
	if r.Summary != "" {
		fmt.Fprintf(w, "\n%s\n\n%s\n", color.New(color.Bold).Sprint("Summary"), r.Summary)
	}

	if len(r.Findings) > 0 {
		fmt.Fprintf(w, "\n%s\n", color.New(color.Bold).Sprintf("Findings (%d)", len(r.Findings)))
		for _, f := range r.Findings {
			sev := severityColor(f.Severity).Sprintf("%-8s", title.String(string(f.Severity)))
			loc := f.File
			if loc != "" && f.Line != nil {
				loc = fmt.Sprintf("%s:%d", loc, *f.Line)
			}
			if loc != "" {
				fmt.Fprintf(w, "  %s %s %s\n", sev, color.New(color.Faint).Sprint(loc), f.Message)
			} else {
				fmt.Fprintf(w, "  %s %s\n", sev, f.Message)
			}
			if f.Suggestion != "" {
				fmt.Fprintf(w, "           → %s\n", f.Suggestion)
			}
		}
	}

	fmt.Fprintln(w)
	if r.Approve != nil {
		if *r.Approve {
			printStatus(w, "✓", "Approved", color.FgGreen)
		} else {
			printStatus(w, "✗", "Changes requested", color.FgRed)
		}
	}
	fmt.Fprintf(w, "Cost: $%.4f  Duration: %s  Agents: %d\n",
		r.TotalCost,
		(time.Duration(r.TotalDurationMs) * time.Millisecond).Round(10*time.Millisecond),
		len(r.AgentResults))
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
