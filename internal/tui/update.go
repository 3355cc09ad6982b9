package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.popup != popupNone {
			return m.handlePopupKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vw := m.width - 4
		vh := m.height - 8
		if vw < 20 {
			vw = 20
		}
		if vh < 6 {
			vh = 6
		}
		m.detailViewport.Width = vw
		m.detailViewport.Height = vh
		return m, nil

	case runsLoadedMsg:
		m.refreshing = false
		if msg.err != nil {
			m.setStatus("Failed to load runs: " + msg.err.Error())
			return m, nil
		}
		m.runs = msg.runs
		m.clampCursor()
		return m, nil

	case detailLoadedMsg:
		if msg.err != nil {
			m.setStatus("Failed to load run: " + msg.err.Error())
			return m, nil
		}
		m.detail = msg.detail
		m.detailViewport.SetContent(m.renderDetailContent())
		if m.screen != screenDetail {
			m.detailViewport.GotoTop()
			m.screen = screenDetail
		}
		return m, nil

	case answerSavedMsg:
		m.popup = popupNone
		m.answerInput.Blur()
		if msg.err != nil {
			m.setStatus("Failed to save answer: " + msg.err.Error())
		} else {
			m.setStatus("Answer saved to " + msg.path)
		}
		if m.detail != nil {
			return m, m.loadDetail(m.detail.Run.ID)
		}
		return m, nil

	case tickMsg:
		cmds := []tea.Cmd{tickCmd()}
		if m.statusMsg != "" && time.Since(m.statusTime) > 5*time.Second {
			m.statusMsg = ""
		}
		if !m.refreshing {
			m.refreshing = true
			cmds = append(cmds, m.loadRuns())
			if m.screen == screenDetail && m.detail != nil {
				cmds = append(cmds, m.loadDetail(m.detail.Run.ID))
			}
		}
		return m, tea.Batch(cmds...)
	}

	if m.screen == screenDetail {
		var cmd tea.Cmd
		m.detailViewport, cmd = m.detailViewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.screen == screenDetail {
			m.screen = screenRuns
		}
		return m, nil

	case "up", "k":
		if m.screen == screenRuns {
			m.cursor--
			m.clampCursor()
			return m, nil
		}

	case "down", "j":
		if m.screen == screenRuns {
			m.cursor++
			m.clampCursor()
			return m, nil
		}

	case "enter":
		if m.screen == screenRuns {
			if r := m.selectedRun(); r != nil {
				return m, m.loadDetail(r.ID)
			}
		}
		return m, nil

	case "a":
		return m.openAnswerPopup()

	case "r":
		m.refreshing = true
		return m, m.loadRuns()
	}

	// Unhandled keys scroll the detail viewport.
	if m.screen == screenDetail {
		var cmd tea.Cmd
		m.detailViewport, cmd = m.detailViewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// openAnswerPopup finds the first unanswered escalation of the current
// run and opens the answer input for it.
func (m Model) openAnswerPopup() (tea.Model, tea.Cmd) {
	if m.detail == nil {
		m.setStatus("Open a run first (enter)")
		return m, nil
	}
	for _, e := range m.detail.Escalations {
		path := m.escalationFile(m.detail.Run, e)
		if path == "" {
			continue
		}
		m.answerTarget = path
		m.answerPrompt = firstLine(e.Question)
		m.answerInput.SetValue("")
		m.popup = popupAnswer
		return m, m.answerInput.Focus()
	}
	m.setStatus("No unanswered escalations on this run")
	return m, nil
}

func (m Model) handlePopupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.popup = popupNone
		m.answerInput.Blur()
		return m, nil

	case "enter":
		answer := strings.TrimSpace(m.answerInput.Value())
		if answer == "" {
			return m, nil
		}
		return m, m.saveAnswer(m.answerTarget, answer)
	}

	var cmd tea.Cmd
	m.answerInput, cmd = m.answerInput.Update(msg)
	return m, cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
