// Package tui renders the host tree and runs the interactive host picker.
package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ThemeEnv selects a palette: none, dark, light or catppuccin.
const ThemeEnv = "SSH_CONTROL_THEME"

// Theme holds the styles shared by the tree renderer and the picker. A
// disabled theme renders every string unchanged.
type Theme struct {
	Enabled bool

	Header   lipgloss.Style
	Group    lipgloss.Style
	Host     lipgloss.Style
	Remote   lipgloss.Style
	Selected lipgloss.Style
	Dim      lipgloss.Style
	Help     lipgloss.Style
	Error    lipgloss.Style
	Success  lipgloss.Style
	Warn     lipgloss.Style
}

type palette struct {
	header, group, host, remote, selected, dim, help, errc, success, warn string
}

var (
	darkPalette  = palette{"", "5", "15", "6", "15", "8", "6", "1", "2", "3"}
	lightPalette = palette{"", "5", "0", "4", "0", "8", "4", "1", "2", "3"}
	mochaPalette = palette{"183", "147", "252", "44", "216", "245", "44", "203", "114", "215"}
)

func (p palette) theme() Theme {
	fg := func(c string) lipgloss.Style {
		s := lipgloss.NewStyle()
		if c != "" {
			s = s.Foreground(lipgloss.Color(c))
		}
		return s
	}
	return Theme{
		Enabled:  true,
		Header:   fg(p.header).Bold(true),
		Group:    fg(p.group).Bold(true),
		Host:     fg(p.host),
		Remote:   fg(p.remote).Italic(true),
		Selected: fg(p.selected).Bold(true),
		Dim:      fg(p.dim).Faint(true),
		Help:     fg(p.help),
		Error:    fg(p.errc),
		Success:  fg(p.success),
		Warn:     fg(p.warn),
	}
}

// NoTheme disables all styling.
func NoTheme() Theme { return Theme{} }

func DarkTheme() Theme { return darkPalette.theme() }

func LightTheme() Theme { return lightPalette.theme() }

// CatppuccinMochaTheme approximates Catppuccin Mocha with 256-colour codes.
func CatppuccinMochaTheme() Theme { return mochaPalette.theme() }

// LoadTheme picks a theme from $SSH_CONTROL_THEME, falling back to the dark
// palette when out is a colour-capable terminal and no theme otherwise.
func LoadTheme(out *os.File) Theme {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(ThemeEnv))) {
	case "none", "off", "disabled":
		return NoTheme()
	case "catppuccin", "catppuccin-mocha", "mocha":
		return CatppuccinMochaTheme()
	case "light":
		return LightTheme()
	case "dark":
		return DarkTheme()
	}
	if !supportsColor(out) {
		return NoTheme()
	}
	return DarkTheme()
}

func supportsColor(out *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if out == nil || !term.IsTerminal(int(out.Fd())) {
		return false
	}
	t := strings.ToLower(strings.TrimSpace(os.Getenv("TERM")))
	return t != "" && t != "dumb"
}

// IsInteractive reports whether both stdin and stdout are terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func (t Theme) render(s lipgloss.Style, text string) string {
	if !t.Enabled || text == "" {
		return text
	}
	return s.Render(text)
}

func (t Theme) GroupText(s string) string   { return t.render(t.Group, s) }
func (t Theme) HostText(s string) string    { return t.render(t.Host, s) }
func (t Theme) RemoteText(s string) string  { return t.render(t.Remote, s) }
func (t Theme) DimText(s string) string     { return t.render(t.Dim, s) }
func (t Theme) HelpText(s string) string    { return t.render(t.Help, s) }
func (t Theme) ErrorText(s string) string   { return t.render(t.Error, s) }
func (t Theme) SuccessText(s string) string { return t.render(t.Success, s) }
func (t Theme) WarnText(s string) string    { return t.render(t.Warn, s) }
