package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jbarlow/vox/pkg/app"
	"github.com/jbarlow/vox/pkg/preset"
)

const banner = `
 ██╗   ██╗ ██████╗ ██╗  ██╗
 ██║   ██║██╔═══██╗╚██╗██╔╝
 ██║   ██║██║   ██║ ╚███╔╝
 ╚██╗ ██╔╝██║   ██║ ██╔██╗
  ╚████╔╝ ╚██████╔╝██╔╝ ██╗
   ╚═══╝   ╚═════╝ ╚═╝  ╚═╝
      voice to text
`

var (
	appStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#61E3FA")).
			Padding(1, 2)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A9B1D6"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9ECE6A")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F7768E"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E0AF68"))

	frameStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7AA2F7")).
			Padding(1, 2)
)

// orchestratorEventMsg wraps an app.Event as a tea.Msg so the Orchestrator's
// EventSink can drive the bubbletea model's Update loop.
type orchestratorEventMsg struct{ event app.Event }

type model struct {
	orchestrator *app.Orchestrator
	presets      *preset.Store
	presetIdx    int

	spinner       spinner.Model
	state         app.RecordingState
	transcript    string
	statusMessage string
	errorMessage  string
	warningMessage string
	width         int
	ready         bool
}

func newModel(presets *preset.Store) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ECE6A"))

	return &model{
		presets:       presets,
		spinner:       s,
		state:         app.Idle,
		statusMessage: "Ready",
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(spinner.Tick, tea.EnterAltScreen)
}

// selectPreset positions the preset cycle on the named preset.
func (m *model) selectPreset(name string) error {
	for i, n := range m.presets.Names() {
		if n == name {
			m.presetIdx = i
			return nil
		}
	}
	return fmt.Errorf("unknown preset %q", name)
}

func (m *model) activePresetName() string {
	names := m.presets.Names()
	if len(names) == 0 {
		return ""
	}
	return names[m.presetIdx%len(names)]
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != app.Idle {
				m.orchestrator.Stop(context.Background())
			}
			return m, tea.Quit

		case " ", "r":
			if m.state == app.Idle {
				m.errorMessage = ""
				m.warningMessage = ""
				if err := m.orchestrator.Start(context.Background(), m.presets, m.activePresetName()); err != nil {
					m.errorMessage = err.Error()
				}
			} else if m.state == app.Recording {
				go m.orchestrator.Stop(context.Background())
			}
			return m, nil

		case "tab":
			if names := m.presets.Names(); len(names) > 0 && m.state == app.Idle {
				m.presetIdx = (m.presetIdx + 1) % len(names)
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.ready = true

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case orchestratorEventMsg:
		m.applyEvent(msg.event)
	}

	return m, nil
}

func (m *model) applyEvent(e app.Event) {
	switch ev := e.(type) {
	case app.RecordingStateChanged:
		m.state = ev.State
		switch ev.State {
		case app.Recording:
			m.statusMessage = "Recording..."
		case app.Transcribing:
			m.statusMessage = "Transcribing..."
		default:
			m.statusMessage = "Ready"
		}
	case app.PostProcessingStarted:
		m.statusMessage = "Cleaning up transcript..."
	case app.PostProcessWarning:
		m.warningMessage = ev.Message
	case app.TranscriptionComplete:
		m.transcript = ev.Text
		m.statusMessage = "Copied to clipboard"
	case app.TranscriptionError:
		m.errorMessage = ev.Message
		m.statusMessage = "Ready"
	}
}

func (m *model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var s strings.Builder
	s.WriteString(appStyle.Render(banner))

	indicator := ""
	if m.state == app.Recording || m.state == app.Transcribing {
		indicator = m.spinner.View() + " "
	}
	s.WriteString("\n" + statusStyle.Render(indicator+"Status: "+m.statusMessage))

	presetName := m.activePresetName()
	help := "Press SPACE to start/stop recording | TAB to cycle presets | q to quit"
	if presetName != "" {
		help = "Preset: " + presetName + " | " + help
	}
	s.WriteString("\n" + infoStyle.Render(help))

	text := m.transcript
	if text == "" {
		text = "No transcription yet..."
	}
	width := m.width - 4
	if width < 10 {
		width = 10
	}
	s.WriteString("\n\n" + frameStyle.Width(width).Render(text))

	if m.warningMessage != "" {
		s.WriteString("\n\n" + warningStyle.Render("Post-processing warning: "+m.warningMessage))
	}
	if m.errorMessage != "" {
		s.WriteString("\n\n" + errorStyle.Render("Error: "+m.errorMessage))
	}

	return s.String()
}
