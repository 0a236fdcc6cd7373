// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/charmbracelet/lipgloss"

// Color palette shared by every command.
const (
	// ColorPrimary is purple, used for titles and pack names.
	ColorPrimary = lipgloss.Color("#7C3AED")
	// ColorMuted is gray, used for secondary text.
	ColorMuted = lipgloss.Color("#6B7280")
	// ColorSuccess is green, used for mounted packs and verified files.
	ColorSuccess = lipgloss.Color("#10B981")
	// ColorError is red, used for failed packs.
	ColorError = lipgloss.Color("#EF4444")
	// ColorWarning is amber.
	ColorWarning = lipgloss.Color("#F59E0B")
	// ColorHighlight is blue, used for commands and paths.
	ColorHighlight = lipgloss.Color("#3B82F6")
	// ColorVerbose is light gray.
	ColorVerbose = lipgloss.Color("#9CA3AF")
)

var (
	// TitleStyle is for primary headers and section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SubtitleStyle is for secondary headers and descriptions.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// SuccessStyle is for success messages and positive indicators.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// ErrorStyle is for error messages and failure indicators.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	// WarningStyle is for warning messages and caution indicators.
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// CmdStyle is for command names, keys and paths.
	CmdStyle = lipgloss.NewStyle().
			Foreground(ColorHighlight)

	// VerboseStyle is for supplementary information.
	VerboseStyle = lipgloss.NewStyle().
			Foreground(ColorVerbose)

	// packNameStyle pads pack names so progress lines align.
	packNameStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Width(16)

	// percentStyle right-aligns the progress percentage.
	percentStyle = lipgloss.NewStyle().
			Foreground(ColorHighlight).
			Width(5).
			Align(lipgloss.Right)

	barFilledStyle = lipgloss.NewStyle().Foreground(ColorSuccess)
	barEmptyStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
)
