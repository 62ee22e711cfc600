package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// SectionHeader creates a styled section header with a title and color
// Example: "─── TITLE ───────────"
func SectionHeader(title string, color lipgloss.Color) string {
	dashes := strings.Repeat("─", max(25-len(title), 0))
	headerStyle := lipgloss.NewStyle().Foreground(color)
	titleStyle := lipgloss.NewStyle().Foreground(color).Bold(true)

	return fmt.Sprintf("%s%s%s",
		headerStyle.Render("  ─── "),
		titleStyle.Render(title),
		headerStyle.Render(" "+dashes),
	)
}

// StatusIcon returns the icon and color for a per-target status
func StatusIcon(status string) (string, lipgloss.Color) {
	switch status {
	case "created", "removed", "success":
		return "✓", ColorGreen
	case "skipped":
		return "⊘", ColorYellow
	case "failed", "error":
		return "✗", ColorRed
	case "pending":
		return "⏳", ColorYellow
	default:
		return "·", ColorWhite
	}
}

// StatusLine renders "  ✓ name  detail" with the icon coloured by status
func StatusLine(status, name, detail string) string {
	icon, color := StatusIcon(status)
	iconStyle := lipgloss.NewStyle().Foreground(color).Bold(true)
	nameStyle := lipgloss.NewStyle().Bold(true)
	line := fmt.Sprintf("  %s %s", iconStyle.Render(icon), nameStyle.Render(name))
	if detail != "" {
		line += "  " + detail
	}
	return line
}

// Hint renders a dimmed remediation hint
func Hint(text string) string {
	return lipgloss.NewStyle().Foreground(ColorDarkGray).Render("      → " + text)
}

// KeyValue renders an aligned "key: value" row
func KeyValue(key, value string) string {
	keyStyle := lipgloss.NewStyle().Foreground(ColorDarkGray).Width(12)
	return "    " + keyStyle.Render(key) + value
}

// Colored renders text in color
func Colored(text string, color lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

// Box creates a bordered box
func Box(content string, borderColor lipgloss.Color) string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Padding(0, 1)
	return style.Render(content)
}
