package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/stackwatch/stackwatch/internal/profiler"
	"github.com/stackwatch/stackwatch/internal/sys/proc"
)

// noDataCell is shown for functions that were requested but never
// observed on the target's stack.
const noDataCell = "No Data Available"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	noDataStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	stateStyles = map[profiler.State]lipgloss.Style{
		profiler.StateIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Bold(true),
		profiler.StateRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		profiler.StateStopped: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
	}
)

// formatEstimate renders one estimate cell: "mean ± margin" in seconds,
// fixed to four decimal places.
func formatEstimate(est profiler.Estimate) string {
	if !est.HasData() {
		return noDataCell
	}
	return fmt.Sprintf("%.4f ± %.4f", est.Mean, est.Margin)
}

// renderResults prints the results table, one row per ever-requested
// function.
func renderResults(w io.Writer, results []profiler.Result) {
	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{r.Name, formatEstimate(r.Estimate)}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 && row >= 0 && !results[row].Estimate.HasData() {
				return cellStyle.Inherit(noDataStyle)
			}
			return cellStyle
		}).
		Headers("Function", "Approximate execution time (s)").
		Rows(rows...)

	fmt.Fprintln(w, t)
}

// renderStatus prints the session status block.
func renderStatus(w io.Writer, status profiler.Status) {
	stateStyle, ok := stateStyles[status.State]
	if !ok {
		stateStyle = cellStyle
	}

	state := status.State.String()
	if status.StopReason != "" {
		state = fmt.Sprintf("%s (%s)", state, status.StopReason)
	}
	fmt.Fprintf(w, "State:     %s\n", stateStyle.Render(state))

	if status.State == profiler.StateIdle {
		return
	}

	alive := "no"
	if status.TargetAlive {
		alive = "yes"
	}
	fmt.Fprintf(w, "Target:    pid %d (alive: %s)\n", status.PID, alive)
	fmt.Fprintf(w, "Interval:  %s\n", status.Interval)
	fmt.Fprintf(w, "Functions: %s\n", strings.Join(status.Functions, ", "))
	if !status.StartedAt.IsZero() {
		fmt.Fprintf(w, "Started:   %s\n", status.StartedAt.Format("15:04:05"))
	}
}

// renderProcesses prints the candidate-target table for the ps command.
func renderProcesses(w io.Writer, procs []proc.Info) {
	if len(procs) == 0 {
		fmt.Fprintln(w, "No Python processes found.")
		return
	}

	rows := make([][]string, len(procs))
	for i, p := range procs {
		cmdline := p.Cmdline
		if len(cmdline) > 60 {
			cmdline = cmdline[:57] + "..."
		}
		rows[i] = []string{fmt.Sprintf("%d", p.PID), p.Name, cmdline}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("PID", "Name", "Command").
		Rows(rows...)

	fmt.Fprintln(w, t)
}
