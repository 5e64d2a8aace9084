package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hpungsan/anno/internal/session"
)

type keyMap struct {
	Prev       key.Binding
	Next       key.Binding
	Up         key.Binding
	Down       key.Binding
	Toggle     key.Binding
	Save       key.Binding
	SaveRemote key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Toggle, k.Save, k.SaveRemote, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Prev, k.Next},
		{k.Up, k.Down, k.Toggle},
		{k.Save, k.SaveRemote},
		{k.Help, k.Quit},
	}
}

var defaultKeys = keyMap{
	Prev:       key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "previous text")),
	Next:       key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "next text")),
	Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "category up")),
	Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "category down")),
	Toggle:     key.NewBinding(key.WithKeys(" ", "space", "x"), key.WithHelp("space", "toggle category")),
	Save:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save")),
	SaveRemote: key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "save + upload")),
	Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tuiStyles struct {
	Header  lipgloss.Style
	Body    lipgloss.Style
	Cursor  lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

func defaultStyles() tuiStyles {
	return tuiStyles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Body:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		Cursor:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// tuiModel drives a session from the keyboard. Every controller call happens
// inside Update, so the controller only ever sees one caller.
type tuiModel struct {
	ctx    context.Context
	ctl    *session.Controller
	keys   keyMap
	help   help.Model
	bar    progress.Model
	styles tuiStyles

	// choice is the highlighted category.
	choice int
	status *session.Status
	// confirmQuit is set after a first quit with unsaved edits.
	confirmQuit bool
	width       int
}

func newTUIModel(ctx context.Context, ctl *session.Controller) tuiModel {
	m := tuiModel{
		ctx:    ctx,
		ctl:    ctl,
		keys:   defaultKeys,
		help:   help.New(),
		bar:    progress.New(progress.WithDefaultGradient()),
		styles: defaultStyles(),
		width:  80,
	}
	av := ctl.Availability()
	if !av.Available {
		m.status = &session.Status{Level: session.LevelWarning, Op: "startup", Message: av.Message}
	}
	return m
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.bar.Width = max(10, min(60, msg.Width-20))
		return m, nil

	case tea.KeyMsg:
		if !key.Matches(msg, m.keys.Quit) {
			m.confirmQuit = false
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			if (m.ctl.Dirty() || m.ctl.Pending()) && !m.confirmQuit {
				m.confirmQuit = true
				m.status = &session.Status{Level: session.LevelWarning, Op: "quit", Message: "unsaved edits; press q again to quit without saving"}
				return m, nil
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Prev):
			m.navigate(-1)
		case key.Matches(msg, m.keys.Next):
			m.navigate(1)
		case key.Matches(msg, m.keys.Up):
			m.choice = max(0, m.choice-1)
		case key.Matches(msg, m.keys.Down):
			m.choice = max(0, min(len(m.ctl.Categories())-1, m.choice+1))
		case key.Matches(msg, m.keys.Toggle):
			m.toggle()
		case key.Matches(msg, m.keys.Save):
			_, err := m.ctl.SaveLocal(m.ctx)
			m.setStatus("save_local", err)
		case key.Matches(msg, m.keys.SaveRemote):
			_, err := m.ctl.SaveRemote(m.ctx)
			m.setStatus("save_remote", err)
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}
	return m, nil
}

func (m *tuiModel) navigate(delta int) {
	out := m.ctl.Navigate(delta)
	if !out.Moved {
		m.status = &session.Status{Level: session.LevelWarning, Op: "navigate", Message: "no more texts in that direction"}
		return
	}
	m.status = nil
}

// toggle flips the highlighted category in the current selection.
func (m *tuiModel) toggle() {
	cats := m.ctl.Categories()
	if len(cats) == 0 {
		return
	}
	cur, err := m.ctl.Current()
	if err != nil {
		m.setStatus("set_labels", err)
		return
	}

	cat := cats[m.choice]
	labels := m.ctl.CurrentLabels()
	if i := slices.Index(labels, cat); i >= 0 {
		labels = slices.Delete(labels, i, i+1)
	} else {
		labels = append(labels, cat)
	}

	if err := m.ctl.SetLabels([]string{cur.ID}, labels); err != nil {
		m.setStatus("set_labels", err)
		return
	}
	m.status = nil
}

func (m *tuiModel) setStatus(op string, err error) {
	st := session.Describe(op, err)
	m.status = &st
}

func (m tuiModel) View() string {
	var b strings.Builder

	rec, err := m.ctl.CurrentRecord()
	if err != nil {
		b.WriteString(m.styles.Warning.Render("The corpus is empty.") + "\n\n")
		b.WriteString(m.help.View(m.keys))
		return b.String()
	}

	marker := ""
	if m.ctl.Dirty() || m.ctl.Pending() {
		marker = m.styles.Warning.Render(" ● unsaved")
	}
	header := m.styles.Header.Render(fmt.Sprintf("Text %d/%d  id %s", rec.Index+1, m.ctl.Total(), rec.ID))
	b.WriteString(header + marker + "\n")

	bodyWidth := max(20, m.width-4)
	b.WriteString(m.styles.Body.Width(bodyWidth).Render(rec.Body) + "\n")

	for i, cat := range m.ctl.Categories() {
		check := "[ ]"
		if slices.Contains(rec.Labels, cat) {
			check = "[x]"
		}
		line := fmt.Sprintf("  %s %s", check, cat)
		if i == m.choice {
			line = m.styles.Cursor.Render(fmt.Sprintf("> %s %s", check, cat))
		}
		b.WriteString(line + "\n")
	}
	for _, l := range rec.Labels {
		if !slices.Contains(m.ctl.Categories(), l) {
			b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  [x] %s (not in vocabulary)", l)) + "\n")
		}
	}

	p := m.ctl.Progress()
	b.WriteString("\n" + m.bar.ViewAs(p.Percent/100) + fmt.Sprintf("  %d/%d annotated\n", p.Annotated, p.Total))
	b.WriteString(m.styles.Muted.Render(m.ctl.Availability().Message) + "\n")

	if m.status != nil {
		style := m.styles.Success
		switch m.status.Level {
		case session.LevelWarning:
			style = m.styles.Warning
		case session.LevelError:
			style = m.styles.Error
		}
		b.WriteString(style.Render(m.status.Message) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

// runTUI runs the terminal UI until the user quits or ctx is cancelled.
func runTUI(ctx context.Context, ctl *session.Controller) error {
	p := tea.NewProgram(newTUIModel(ctx, ctl), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
