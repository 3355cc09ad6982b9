// Package tui is the terminal dashboard over the audit store: recent runs,
// their stage history, and pending escalations, with inline answering.
package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/quintetdev/quintet/internal/escalate"
	"github.com/quintetdev/quintet/internal/store"
	"github.com/quintetdev/quintet/internal/workspace"
)

// screen identifies which view the dashboard shows.
type screen int

const (
	screenRuns   screen = iota // run list (main)
	screenDetail               // one run's stages and events
)

// popup identifies the active overlay, if any.
type popup int

const (
	popupNone popup = iota
	popupAnswer
)

// runDetail is everything loaded for one run.
type runDetail struct {
	Run         *store.Run
	Stages      []store.Stage
	Escalations []store.Escalation
	Events      []store.Event
}

// Model is the top-level bubbletea model.
type Model struct {
	store   *store.Store
	baseDir string // workspaces directory, for escalation files
	width   int
	height  int

	screen screen
	popup  popup

	// Run list state.
	runs   []store.Run
	cursor int

	// Detail state.
	detail         *runDetail
	detailViewport viewport.Model

	// Answer popup state.
	answerInput  textinput.Model
	answerTarget string // escalation file path being answered
	answerPrompt string // the question shown above the input

	statusMsg  string
	statusTime time.Time
	refreshing bool
	quitting   bool
}

// New creates the dashboard model. baseDir is the directory named
// workspaces live under.
func New(s *store.Store, baseDir string) Model {
	ai := textinput.New()
	ai.Placeholder = "Your answer..."
	ai.CharLimit = 500
	ai.Width = 60

	return Model{
		store:       s,
		baseDir:     baseDir,
		screen:      screenRuns,
		answerInput: ai,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadRuns(), tickCmd())
}

type runsLoadedMsg struct {
	runs []store.Run
	err  error
}

type detailLoadedMsg struct {
	detail *runDetail
	err    error
}

type answerSavedMsg struct {
	path string
	err  error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) loadRuns() tea.Cmd {
	return func() tea.Msg {
		runs, err := m.store.ListRuns("")
		return runsLoadedMsg{runs: runs, err: err}
	}
}

func (m Model) loadDetail(runID string) tea.Cmd {
	return func() tea.Msg {
		run, err := m.store.GetRun(runID)
		if err != nil {
			return detailLoadedMsg{err: err}
		}
		stages, _ := m.store.ListStages(runID)
		escalations, _ := m.store.ListEscalations(runID)
		events, _ := m.store.GetEvents(runID)
		return detailLoadedMsg{detail: &runDetail{
			Run:         run,
			Stages:      stages,
			Escalations: escalations,
			Events:      events,
		}}
	}
}

// saveAnswer appends the answer below the heading of an escalation file
// and folds it into the workspace's shared understanding document, so
// every later prompt sees it.
func (m Model) saveAnswer(path, answer string) tea.Cmd {
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return answerSavedMsg{path: path, err: err}
		}
		content := string(data)
		if len(content) > 0 && content[len(content)-1] != '\n' {
			content += "\n"
		}
		content += answer + "\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return answerSavedMsg{path: path, err: err}
		}

		esc, err := escalate.ReadArtifact(path)
		if err != nil {
			return answerSavedMsg{path: path, err: err}
		}
		root := filepath.Dir(filepath.Dir(path))
		ws, err := workspace.Open(filepath.Base(root), root)
		if err != nil {
			return answerSavedMsg{path: path, err: err}
		}
		err = ws.AppendDoc(workspace.DocShared, esc.Section())
		return answerSavedMsg{path: path, err: err}
	}
}

// escalationFile returns the persisted file for one of a run's
// escalations, or "" if it is absent or already answered.
func (m Model) escalationFile(run *store.Run, e store.Escalation) string {
	path := filepath.Join(m.baseDir, run.Workspace, "escalations",
		fmt.Sprintf("iter-%02d-%s.md", e.Iteration, e.Role))
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	if _, answered := escalate.FileAnswer(path); answered {
		return ""
	}
	return path
}

func (m *Model) setStatus(msg string) {
	m.statusMsg = msg
	m.statusTime = time.Now()
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.runs) {
		m.cursor = len(m.runs) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) selectedRun() *store.Run {
	if m.cursor < len(m.runs) {
		r := m.runs[m.cursor]
		return &r
	}
	return nil
}
