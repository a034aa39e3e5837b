package diffpreview

import "github.com/charmbracelet/lipgloss"

// Token is the syntactic class of a rendered fragment.
type Token uint8

const (
	TokenKey Token = iota
	TokenString
	TokenNumber
	TokenBool
	TokenNull
)

// Theme styles rendered fragments. Syntax styles color tokens, the change
// styles mark whole entries.
type Theme struct {
	Syntax  map[Token]lipgloss.Style
	Changes map[ChangeType]lipgloss.Style
}

func fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

func bg(back, front string) lipgloss.Style {
	return lipgloss.NewStyle().Background(lipgloss.Color(back)).Foreground(lipgloss.Color(front))
}

var DarkTheme = Theme{
	Syntax: map[Token]lipgloss.Style{
		TokenKey:    fg("#888888"),
		TokenString: fg("#98C379"),
		TokenNumber: fg("#61AFEF"),
		TokenBool:   fg("#E5C07B"),
		TokenNull:   fg("#888888").Italic(true),
	},
	Changes: map[ChangeType]lipgloss.Style{
		Added:    bg("#144212", "#A9DC76"),
		Removed:  bg("#4C1F1F", "#E06C75"),
		Modified: bg("#3E3200", "#E5C07B"),
	},
}

// PlainTheme renders without any styling, for pipes and tests.
var PlainTheme = Theme{}

func (t Theme) SyntaxHighlight(kind Token, content string) string {
	if style, ok := t.Syntax[kind]; ok {
		return style.Render(content)
	}
	return content
}

func (t Theme) BackgroundHighlight(change ChangeType, content string) string {
	if style, ok := t.Changes[change]; ok {
		return style.Render(content)
	}
	return content
}
