package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"treesort/internal/model"
)

var (
	colorMuted     = lipgloss.AdaptiveColor{Light: "244", Dark: "243"}
	colorAccent    = lipgloss.AdaptiveColor{Light: "25", Dark: "39"}
	colorAccentFg  = lipgloss.AdaptiveColor{Light: "255", Dark: "16"}
	colorStripeBg  = lipgloss.AdaptiveColor{Light: "254", Dark: "235"}
	colorGrabbedBg = lipgloss.AdaptiveColor{Light: "223", Dark: "94"}
	colorErrorFg   = lipgloss.AdaptiveColor{Light: "160", Dark: "203"}
	colorOkFg      = lipgloss.AdaptiveColor{Light: "28", Dark: "78"}

	rowStyle       = lipgloss.NewStyle()
	stripeStyle    = lipgloss.NewStyle().Background(colorStripeBg)
	cursorStyle    = lipgloss.NewStyle().Background(colorAccent).Foreground(colorAccentFg)
	grabbedStyle   = lipgloss.NewStyle().Background(colorGrabbedBg).Bold(true)
	handleStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	headerStyle    = lipgloss.NewStyle().Bold(true)
	statusStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	statusErrStyle = lipgloss.NewStyle().Foreground(colorErrorFg).Bold(true)
	statusOkStyle  = lipgloss.NewStyle().Foreground(colorOkFg)
)

// ConfigureColor picks the lipgloss color profile from the terminal. NO_COLOR forces plain output.
func ConfigureColor() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

func styleForStripe(s model.Stripe) lipgloss.Style {
	if s == model.StripeOdd {
		return stripeStyle
	}
	return rowStyle
}
