package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	mutedStyleColor     = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}
	warningStyleColor   = lipgloss.AdaptiveColor{Light: "#FFA500", Dark: "#FFA500"}
	titleStyleColor     = lipgloss.AdaptiveColor{Light: "#071330", Dark: "#F652A0"}
	textStyleColor      = lipgloss.AdaptiveColor{Light: "#36EEE0", Dark: "#00FFFF"}
	secondaryStyleColor = lipgloss.AdaptiveColor{Light: "#214358", Dark: "#AEB8C4"}
	labelStyle          = lipgloss.NewStyle().Foreground(secondaryStyleColor).Bold(true)
)

func Title(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(titleStyleColor).Render(text)
}

func Bold(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(textStyleColor).Render(text)
}

func Muted(text string) string {
	return lipgloss.NewStyle().Foreground(mutedStyleColor).Render(text)
}

func Warning(text string) string {
	return lipgloss.NewStyle().Foreground(warningStyleColor).Render(text)
}

// Fields renders label/value pairs with the labels padded to a common width.
func Fields(pairs ...string) string {
	width := 0
	for i := 0; i+1 < len(pairs); i += 2 {
		width = max(width, len(pairs[i]))
	}
	var out strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		out.WriteString(labelStyle.Render(PadRight(pairs[i]+":", width+1, " ")))
		out.WriteString(" ")
		out.WriteString(pairs[i+1])
		if i+2 < len(pairs) {
			out.WriteString("\n")
		}
	}
	return out.String()
}

func PadRight(str string, length int, pad string) string {
	if len(str) >= length {
		return str
	}
	return str + strings.Repeat(pad, length-len(str))
}

// MaxWidth shortens text to width runes, marking the cut with an ellipsis.
func MaxWidth(text string, width int) string {
	if lipgloss.Width(text) <= width || width < 4 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	return string(runes[:width-3]) + "..."
}
