package ui

import (
	"github.com/numberone-ai/previewctl/internal/models"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorCyan     = lipgloss.Color("#00FFFF")
	ColorGreen    = lipgloss.Color("#00FF00")
	ColorYellow   = lipgloss.Color("#FFFF00")
	ColorRed      = lipgloss.Color("#FF0000")
	ColorMagenta  = lipgloss.Color("#FF00FF")
	ColorBlue     = lipgloss.Color("#5555FF")
	ColorOrange   = lipgloss.Color("#FFA500")
	ColorWhite    = lipgloss.Color("#FFFFFF")
	ColorDarkGray = lipgloss.Color("8") // ANSI 8
)

// HealthColor colours a controller health value
func HealthColor(h models.HealthStatus) lipgloss.Color {
	switch h {
	case models.HealthHealthy:
		return ColorGreen
	case models.HealthProgressing:
		return ColorCyan
	case models.HealthSuspended:
		return ColorBlue
	case models.HealthDegraded, models.HealthMissing:
		return ColorRed
	default:
		return ColorYellow
	}
}

// SyncColor colours a controller sync value
func SyncColor(s models.SyncStatus) lipgloss.Color {
	switch s {
	case models.SyncSynced:
		return ColorGreen
	case models.SyncOutOfSync:
		return ColorOrange
	default:
		return ColorYellow
	}
}

// VerdictColor colours an inspection verdict
func VerdictColor(v models.Verdict) lipgloss.Color {
	switch v {
	case models.VerdictClean:
		return ColorGreen
	case models.VerdictNeedsCleanup:
		return ColorOrange
	default:
		return ColorYellow
	}
}
