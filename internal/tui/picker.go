package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/firefly-engineering/firefly-forage/packages/forage-pr/internal/audit"
)

// Action is what the user chose in the picker
type Action int

const (
	ActionNone Action = iota
	ActionShow
	ActionRemove
	ActionQuit
)

// Outcome is how a recorded run ended.
type Outcome string

const (
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
	OutcomeIncomplete Outcome = "incomplete"
)

// RunSummary is one row of the picker, condensed from a run's audit trail.
type RunSummary struct {
	ID      string
	Issue   string
	Started time.Time
	Outcome Outcome
	// Stage is the failed stage for failed runs, or the last stage seen
	// for runs without an end event.
	Stage  string
	Detail string
}

// Summarize condenses the events of run id into a RunSummary.
func Summarize(id string, events []audit.Event) RunSummary {
	s := RunSummary{ID: id, Outcome: OutcomeIncomplete}
	for _, e := range events {
		switch e.Type {
		case audit.EventRunStart:
			s.Issue = e.Details
			s.Started = e.Timestamp
		case audit.EventStageStart:
			s.Stage = e.Stage
		case audit.EventRunEnd:
			s.Detail = e.Details
			if e.Kind != "" {
				s.Outcome = OutcomeFailed
				s.Stage = e.Stage
			} else {
				s.Outcome = OutcomeSucceeded
				s.Stage = ""
			}
		}
	}
	return s
}

// PickerResult holds the result of the picker
type PickerResult struct {
	Action Action
	Run    *RunSummary
}

type runItem struct {
	run RunSummary
}

func (i runItem) Title() string {
	if i.run.Issue == "" {
		return i.run.ID
	}
	return i.run.Issue
}

func (i runItem) Description() string {
	icon := "○"
	outcome := string(i.run.Outcome)
	switch i.run.Outcome {
	case OutcomeSucceeded:
		icon = "✓"
	case OutcomeFailed:
		icon = "✗"
		if i.run.Stage != "" {
			outcome += " at " + i.run.Stage
		}
	}

	started := "unknown start"
	if !i.run.Started.IsZero() {
		started = i.run.Started.Local().Format("2006-01-02 15:04")
	}

	desc := fmt.Sprintf("%s %s | %s | %s", icon, outcome, started, i.run.ID)
	if i.run.Detail != "" {
		desc += " | " + truncate(i.run.Detail, 40)
	}
	return desc
}

func (i runItem) FilterValue() string {
	return i.run.Issue + " " + i.run.ID
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)
)

// Model is the bubbletea model for the run picker
type Model struct {
	list     list.Model
	result   PickerResult
	quitting bool
}

// NewPicker creates a picker over runs, newest first.
func NewPicker(runs []RunSummary) Model {
	items := make([]list.Item, len(runs))
	for i, r := range runs {
		items[len(runs)-1-i] = runItem{run: r}
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = selectedStyle
	delegate.Styles.SelectedDesc = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	l := list.New(items, delegate, 80, 20)
	l.Title = "forage-pr - Select Run"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}

		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(runItem); ok {
				return m.finish(ActionShow, &item.run)
			}

		case "d":
			if item, ok := m.list.SelectedItem().(runItem); ok {
				return m.finish(ActionRemove, &item.run)
			}

		case "q", "esc", "ctrl+c":
			return m.finish(ActionQuit, nil)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) finish(action Action, run *RunSummary) (tea.Model, tea.Cmd) {
	m.result = PickerResult{Action: action, Run: run}
	m.quitting = true
	return m, tea.Quit
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	help := helpStyle.Render("[enter] Show  [d] Delete log  [/] Filter  [q] Quit")
	return m.list.View() + "\n" + help
}

// Result returns the picker result
func (m Model) Result() PickerResult {
	return m.result
}

// RunPicker runs the interactive run picker on the terminal.
func RunPicker(runs []RunSummary) (PickerResult, error) {
	if len(runs) == 0 {
		return PickerResult{Action: ActionQuit}, nil
	}

	p := tea.NewProgram(NewPicker(runs), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}
	return finalModel.(Model).Result(), nil
}
