package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	assistantStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// The assistant label changes colour with the detected topic.
var topicColors = map[string]lipgloss.Color{
	"Sports":       lipgloss.Color("10"),
	"Finance":      lipgloss.Color("11"),
	"Tech/Science": lipgloss.Color("14"),
}

func topicStyle(topic string) lipgloss.Style {
	if c, ok := topicColors[topic]; ok {
		return assistantStyle.Foreground(c)
	}
	return assistantStyle
}
