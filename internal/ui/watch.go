package ui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aurora-dispenser/aurora-sync/internal/statusfeed"
)

// Source yields status updates; statusfeed.Subscription implements it.
type Source interface {
	Next() (statusfeed.Status, error)
}

// Message types for async feed reads
type statusMsg struct{ status statusfeed.Status }
type feedErrMsg struct{ err error }
type clockMsg time.Time

// watchKeyMap defines key bindings for the watch screen
type watchKeyMap struct {
	Schedule key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Schedule, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Schedule}, {k.Help, k.Quit}}
}

func defaultWatchKeys() watchKeyMap {
	return watchKeyMap{
		Schedule: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "toggle schedule"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// WatchModel is the live status screen.
type WatchModel struct {
	source Source
	status *statusfeed.Status
	err    error

	Spinner      spinner.Model
	PollProgress progress.Model
	Help         help.Model
	Keys         watchKeyMap

	ShowSchedule bool
	Width        int

	now func() time.Time
}

// NewWatchModel creates a watch screen reading from source.
func NewWatchModel(source Source) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 40

	return WatchModel{
		source:       source,
		Spinner:      s,
		PollProgress: bar,
		Help:         help.New(),
		Keys:         defaultWatchKeys(),
		ShowSchedule: true,
		Width:        GetTerminalWidth(),
		now:          time.Now,
	}
}

func waitForStatus(source Source) tea.Cmd {
	return func() tea.Msg {
		st, err := source.Next()
		if err != nil {
			return feedErrMsg{err: err}
		}
		return statusMsg{status: st}
	}
}

func clockTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return clockMsg(t) })
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, waitForStatus(m.source), clockTick())
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Schedule):
			m.ShowSchedule = !m.ShowSchedule
		case key.Matches(msg, m.Keys.Help):
			m.Help.ShowAll = !m.Help.ShowAll
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.Width = clampWidth(msg.Width)
		m.PollProgress.Width = m.Width - 24
		m.Help.Width = m.Width
		return m, nil

	case statusMsg:
		st := msg.status
		m.status = &st
		m.err = nil
		return m, waitForStatus(m.source)

	case feedErrMsg:
		m.err = msg.err
		return m, nil

	case clockMsg:
		return m, clockTick()

	case spinner.TickMsg:
		if m.status != nil || m.err != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	switch {
	case m.err != nil:
		b.WriteString(RenderErrorBox("Status feed lost", m.err, []string{
			"Check that 'aurora-sync run' is still running",
			"Check status.listen in the daemon's configuration",
		}, m.Width))
	case m.status == nil:
		b.WriteString(m.Spinner.View() + " Waiting for status...")
	default:
		st := *m.status
		if !m.ShowSchedule {
			st.Schedule = nil
		}
		now := m.now()
		b.WriteString(RenderStatus(st, now, m.Width))
		if frac, ok := pollFraction(st, now); ok {
			b.WriteString("\n" + KeyStyle.Render("Next poll:") + " " + m.PollProgress.ViewAs(frac))
		}
	}

	b.WriteString("\n\n" + m.Help.View(m.Keys))
	return b.String()
}

// pollFraction reports how far through the poll interval the daemon is.
func pollFraction(st statusfeed.Status, now time.Time) (float64, bool) {
	if st.LastPoll == nil {
		return 0, false
	}
	interval, err := time.ParseDuration(st.PollInterval)
	if err != nil || interval <= 0 {
		return 0, false
	}
	frac := float64(now.Sub(st.LastPoll.At)) / float64(interval)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return frac, true
}

// RunWatch runs the watch screen until the user quits or ctx is cancelled.
func RunWatch(ctx context.Context, source Source) error {
	p := tea.NewProgram(NewWatchModel(source), tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
