package verify

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle = lipgloss.NewStyle().Bold(true)
)

// FormatResults renders a verification result for the operator: overall
// status, one line per check, and detail dumps for failures only.
func FormatResults(res *Result) string {
	var sb strings.Builder

	if res.Success {
		sb.WriteString(headerStyle.Render("Verification passed"))
	} else {
		sb.WriteString(headerStyle.Render("Verification failed"))
	}
	fmt.Fprintf(&sb, " %s\n", mutedStyle.Render(fmt.Sprintf("(%d passed, %d failed, %d total)", res.Passed, res.Failed, res.Total)))

	for _, c := range res.Checks {
		mark := passStyle.Render("✓")
		if !c.Success {
			mark = failStyle.Render("✗")
		}
		fmt.Fprintf(&sb, "  %s %-20s %s %s\n", mark, c.Name, c.Message, mutedStyle.Render(fmt.Sprintf("(%s)", c.Duration.Round(time.Millisecond))))

		if !c.Success {
			for _, d := range c.Details {
				fmt.Fprintf(&sb, "      - %s\n", d)
			}
		}
	}

	return sb.String()
}
