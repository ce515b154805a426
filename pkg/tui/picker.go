package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ssh-control/pkg/manager"
)

// Action is what the user chose in the picker.
type Action int

const (
	ActionNone Action = iota
	ActionConnect
	ActionSnippets
	ActionQuit
)

// PickerResult holds the outcome of the picker.
type PickerResult struct {
	Action Action
	Host   *manager.HostVisit
}

// hostItem implements list.Item for one host of the augmented tree.
type hostItem struct {
	visit    manager.HostVisit
	settings manager.ResolvedSettings
	groups   string
}

func newHostItem(v manager.HostVisit) hostItem {
	names := make([]string, 0, len(v.Chain))
	for i := len(v.Chain) - 1; i >= 0; i-- {
		names = append(names, v.Chain[i].Name)
	}
	return hostItem{
		visit:    v,
		settings: manager.ResolveHostSettings(v.Host, v.Chain),
		groups:   strings.Join(names, " / "),
	}
}

func (i hostItem) Title() string {
	if i.visit.Host.Name != "" {
		return i.visit.Host.Name
	}
	return i.visit.Host.HostName
}

func (i hostItem) Description() string {
	d := HostLabel(manager.Host{HostName: i.visit.Host.HostName}, i.settings) + " | " + i.groups
	if i.visit.Remote {
		d += " | remote"
	}
	return d
}

func (i hostItem) FilterValue() string {
	return i.visit.Host.Name + " " + i.visit.Host.HostName + " " + i.groups
}

// Model is the bubbletea model for the host picker.
type Model struct {
	list     list.Model
	theme    Theme
	result   PickerResult
	quitting bool
}

// NewPicker builds a picker over the given hosts.
func NewPicker(hosts []manager.HostVisit, theme Theme) Model {
	items := make([]list.Item, len(hosts))
	for i, v := range hosts {
		items[i] = newHostItem(v)
	}

	delegate := list.NewDefaultDelegate()
	if theme.Enabled {
		delegate.Styles.SelectedTitle = theme.Selected.PaddingLeft(1).
			Border(lipgloss.NormalBorder(), false, false, false, true)
		delegate.Styles.SelectedDesc = theme.Dim.PaddingLeft(1).
			Border(lipgloss.NormalBorder(), false, false, false, true)
	}

	l := list.New(items, delegate, 80, 20)
	l.Title = "ssh-control - Select Host"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	if theme.Enabled {
		l.Styles.Title = theme.Header.MarginBottom(1)
	}
	return Model{list: l, theme: theme}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "enter":
			return m.choose(ActionConnect)
		case "s":
			return m.choose(ActionSnippets)
		case "q", "esc", "ctrl+c":
			m.result = PickerResult{Action: ActionQuit}
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) choose(a Action) (tea.Model, tea.Cmd) {
	item, ok := m.list.SelectedItem().(hostItem)
	if !ok {
		return m, nil
	}
	v := item.visit
	m.result = PickerResult{Action: a, Host: &v}
	m.quitting = true
	return m, tea.Quit
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.list.View() + "\n" + m.theme.HelpText("[enter] Connect  [s] Snippets  [/] Filter  [q] Quit")
}

// Result returns the picker result.
func (m Model) Result() PickerResult {
	return m.result
}

// CollectHosts walks the augmented tree into a slice for the picker.
func CollectHosts(ctx context.Context, cfg *manager.Config, src manager.RemoteSource) ([]manager.HostVisit, []string, error) {
	var hosts []manager.HostVisit
	warnings, err := manager.Walk(ctx, cfg, src, func(v manager.HostVisit) error {
		hosts = append(hosts, v)
		return nil
	})
	return hosts, warnings, err
}

// RunPicker runs the interactive host picker on the alternate screen.
func RunPicker(hosts []manager.HostVisit, theme Theme) (PickerResult, error) {
	if len(hosts) == 0 {
		return PickerResult{Action: ActionNone}, nil
	}
	p := tea.NewProgram(NewPicker(hosts, theme), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return PickerResult{}, err
	}
	return final.(Model).Result(), nil
}
