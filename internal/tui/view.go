package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/quintetdev/quintet/internal/store"
)

// --- Color palette ---
var (
	clrSubtle    = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#666666"}
	clrHighlight = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	clrGreen     = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	clrYellow    = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	clrRed       = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	clrBlue      = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	clrCyan      = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"}
	clrDim       = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#555555"}
)

// --- Styles ---
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	dimStyle    = lipgloss.NewStyle().Foreground(clrDim)
	subtleStyle = lipgloss.NewStyle().Foreground(clrSubtle)

	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)

	popupStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrHighlight).
			Padding(1, 2).
			Width(64)

	statusStyle = lipgloss.NewStyle().Foreground(clrGreen).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(clrRed).Bold(true)

	footerKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	footerDescStyle = lipgloss.NewStyle().Foreground(clrSubtle)
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.screen {
	case screenRuns:
		content = m.viewRuns()
	case screenDetail:
		content = m.viewDetail()
	}

	if m.popup == popupAnswer {
		content = m.overlayAnswerPopup(content)
	}
	return content
}

func (m Model) viewRuns() string {
	var b strings.Builder

	header := titleStyle.Render("quintet runs")
	header += dimStyle.Render(fmt.Sprintf(" — %d total", len(m.runs)))
	b.WriteString(header + "\n\n")

	if len(m.runs) == 0 {
		b.WriteString(dimStyle.Render("  No runs yet. Start one with: quintet run \"your task\"\n"))
		b.WriteString("\n" + m.runsFooter())
		return b.String()
	}

	for i, r := range m.runs {
		cursor := "  "
		if i == m.cursor {
			cursor = selectedStyle.Render("▸ ")
		}

		status := statusDot(r.Status) + " " + runStatusStyle(r.Status).Render(fmt.Sprintf("%-10s", r.Status))
		ws := subtleStyle.Render(fmt.Sprintf("%-10s", r.Workspace))
		task := truncate(r.Task, 50)
		if i == m.cursor {
			task = selectedStyle.Render(task)
		}
		iter := dimStyle.Render(fmt.Sprintf("iter %d", r.Iterations))
		started := dimStyle.Render(r.StartedAt.Local().Format("01-02 15:04"))

		b.WriteString(fmt.Sprintf("%s%s %s %s  %s  %s\n", cursor, status, ws, task, iter, started))
	}

	if m.statusMsg != "" {
		b.WriteString("\n" + m.renderStatus())
	}
	b.WriteString("\n" + m.runsFooter())
	return b.String()
}

func (m Model) runsFooter() string {
	keys := []struct{ key, desc string }{
		{"↑↓", "navigate"},
		{"enter", "open run"},
		{"r", "refresh"},
		{"q", "quit"},
	}
	return renderFooter(keys)
}

func (m Model) viewDetail() string {
	if m.detail == nil {
		return "No run selected"
	}

	var b strings.Builder
	r := m.detail.Run

	b.WriteString(titleStyle.Render("run "+r.ID[:8]) + "  " +
		runStatusStyle(r.Status).Render(string(r.Status)) + "  " +
		dimStyle.Render("esc back") + "\n")
	b.WriteString(subtleStyle.Render("  "+truncate(r.Task, 70)) + "\n\n")

	b.WriteString(m.detailViewport.View() + "\n")

	if m.statusMsg != "" {
		b.WriteString("\n" + m.renderStatus())
	}

	keys := []struct{ key, desc string }{
		{"↑↓", "scroll"},
		{"a", "answer escalation"},
		{"esc", "back"},
		{"q", "quit"},
	}
	b.WriteString("\n" + renderFooter(keys))
	return b.String()
}

// renderDetailContent builds the scrollable body: stages, escalations,
// then events.
func (m Model) renderDetailContent() string {
	if m.detail == nil {
		return ""
	}
	var b strings.Builder

	if len(m.detail.Stages) > 0 {
		b.WriteString(lipgloss.NewStyle().Bold(true).Render("Stages:") + "\n")
		for _, st := range m.detail.Stages {
			mark := lipgloss.NewStyle().Foreground(clrGreen).Render("●")
			if st.Failed {
				mark = lipgloss.NewStyle().Foreground(clrRed).Render("✗")
			}
			role := lipgloss.NewStyle().Foreground(clrCyan).Render(fmt.Sprintf("%-12s", st.Role))
			b.WriteString(fmt.Sprintf("  %s iter %d %s %-14s %6.1fs  %s\n",
				mark, st.Iteration, role, st.Verdict,
				float64(st.DurationMS)/1000, dimStyle.Render(st.Artifact)))
		}
		b.WriteString("\n")
	}

	if len(m.detail.Escalations) > 0 {
		b.WriteString(lipgloss.NewStyle().Bold(true).Render("Escalations:") + "\n")
		for _, e := range m.detail.Escalations {
			pending := m.escalationFile(m.detail.Run, e) != ""
			mark := lipgloss.NewStyle().Foreground(clrGreen).Render("✓")
			if pending {
				mark = lipgloss.NewStyle().Foreground(clrYellow).Render("⚠")
			}
			b.WriteString(fmt.Sprintf("  %s iter %d %s: %s\n",
				mark, e.Iteration,
				lipgloss.NewStyle().Foreground(clrCyan).Render(e.Role),
				truncate(firstLine(e.Question), 60)))
			b.WriteString("    " + dimStyle.Render("-> "+truncate(firstLine(e.Resolution), 60)) + "\n")
		}
		b.WriteString("\n")
	}

	if len(m.detail.Events) > 0 {
		b.WriteString(lipgloss.NewStyle().Bold(true).Render("Events:") + "\n")
		for _, ev := range m.detail.Events {
			ts := dimStyle.Render(ev.Timestamp.Local().Format("15:04:05"))
			b.WriteString(fmt.Sprintf("  %s %-10s %s\n", ts, ev.Type, truncate(ev.Content, 60)))
		}
	}

	return b.String()
}

func (m Model) overlayAnswerPopup(bg string) string {
	var b strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(clrYellow).Render("Answer Escalation")
	b.WriteString(title + "\n\n")
	b.WriteString(lipgloss.NewStyle().Foreground(clrRed).Render(m.answerPrompt) + "\n\n")
	b.WriteString("Your answer:\n")
	b.WriteString(m.answerInput.View() + "\n\n")
	b.WriteString(footerDescStyle.Render("enter submit • esc cancel"))

	popup := popupStyle.Render(b.String())
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height,
			lipgloss.Center, lipgloss.Center,
			popup,
			lipgloss.WithWhitespaceChars(" "),
		)
	}
	return popup
}

func (m Model) renderStatus() string {
	lower := strings.ToLower(m.statusMsg)
	if strings.HasPrefix(lower, "failed") || strings.HasPrefix(lower, "error") {
		return errorStyle.Render("  " + m.statusMsg)
	}
	return statusStyle.Render("  " + m.statusMsg)
}

func statusDot(s store.RunStatus) string {
	switch s {
	case store.StatusDone:
		return lipgloss.NewStyle().Foreground(clrGreen).Render("●")
	case store.StatusRunning:
		return lipgloss.NewStyle().Foreground(clrBlue).Render("◉")
	case store.StatusFailed:
		return lipgloss.NewStyle().Foreground(clrRed).Render("✗")
	default:
		return lipgloss.NewStyle().Foreground(clrYellow).Render("○")
	}
}

func runStatusStyle(s store.RunStatus) lipgloss.Style {
	switch s {
	case store.StatusDone:
		return lipgloss.NewStyle().Foreground(clrGreen)
	case store.StatusRunning:
		return lipgloss.NewStyle().Foreground(clrBlue)
	case store.StatusFailed:
		return lipgloss.NewStyle().Foreground(clrRed)
	default:
		return lipgloss.NewStyle().Foreground(clrYellow)
	}
}

func renderFooter(keys []struct{ key, desc string }) string {
	var parts []string
	for _, k := range keys {
		parts = append(parts, footerKeyStyle.Render(k.key)+" "+footerDescStyle.Render(k.desc))
	}
	return "  " + strings.Join(parts, "  ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
