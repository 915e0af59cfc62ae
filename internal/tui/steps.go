package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StepState is the lifecycle of one pipeline step in the display.
type StepState int

const (
	StepPending StepState = iota
	StepRunning
	StepSuccess
	StepFailed
	StepSkipped
)

// Step is one tracked pipeline stage.
type Step struct {
	Name    string
	State   StepState
	Detail  string
	Elapsed time.Duration
}

// StepMsg transitions a step. Sent to the program by the goroutine that
// runs the pipeline.
type StepMsg struct {
	Index  int
	State  StepState
	Detail string
}

// PipelineDoneMsg ends the display.
type PipelineDoneMsg struct{}

// StepsModel renders the deploy pipeline stages as a live checklist:
// pending steps are dimmed, the running step spins, finished steps get
// their marker and elapsed time.
type StepsModel struct {
	steps   []Step
	spinner spinner.Model
	started time.Time
	done    bool
}

// NewStepsModel creates a checklist for the named steps, all pending.
func NewStepsModel(names []string) StepsModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = SpinnerStyle

	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Name: name, State: StepPending}
	}
	return StepsModel{
		steps:   steps,
		spinner: s,
		started: time.Now(),
	}
}

func (m StepsModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m StepsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.done = true
			return m, tea.Quit
		}

	case StepMsg:
		if msg.Index >= 0 && msg.Index < len(m.steps) {
			step := &m.steps[msg.Index]
			step.State = msg.State
			step.Detail = msg.Detail
			if msg.State == StepSuccess || msg.State == StepFailed {
				step.Elapsed = time.Since(m.started)
			}
		}

	case PipelineDoneMsg:
		m.done = true
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m StepsModel) View() string {
	var out string
	for _, step := range m.steps {
		var marker string
		style := lipgloss.NewStyle()

		switch step.State {
		case StepPending:
			marker = MutedStyle.Render("○")
			style = MutedStyle
		case StepRunning:
			marker = m.spinner.View()
		case StepSuccess:
			marker = SuccessStyle.Render("✓")
		case StepFailed:
			marker = ErrorStyle.Render("✗")
			style = ErrorStyle
		case StepSkipped:
			marker = MutedStyle.Render("-")
			style = MutedStyle
		}

		out += marker + " " + style.Render(step.Name)
		if step.Detail != "" {
			out += " " + MutedStyle.Render(step.Detail)
		}
		out += "\n"
	}
	return out
}

// ShowSteps starts the checklist display. The caller drives it with
// StepMsg and ends it with PipelineDoneMsg.
func ShowSteps(names []string) *tea.Program {
	return tea.NewProgram(NewStepsModel(names))
}

// RunWithSpinner runs task while a single-line spinner shows message, then
// prints the task's summary line with a success or failure marker. Used
// for the standalone commands (verify, rollback) that have one step only.
func RunWithSpinner(message string, task func() (string, error)) error {
	p := ShowSteps([]string{message})

	var summary string
	var taskErr error
	go func() {
		p.Send(StepMsg{Index: 0, State: StepRunning})
		summary, taskErr = task()
		state := StepSuccess
		if taskErr != nil {
			state = StepFailed
			if summary == "" {
				summary = taskErr.Error()
			}
		}
		p.Send(StepMsg{Index: 0, State: state, Detail: summary})
		p.Send(PipelineDoneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal display error: %w", err)
	}
	return taskErr
}
