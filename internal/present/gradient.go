package present

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	gradientStart = "#F967DC"
	gradientEnd   = "#6B50FF"
)

// GradientRamp blends length colors between the brand colors.
func GradientRamp(length int) []lipgloss.Color {
	start, _ := colorful.Hex(gradientStart)
	end, _ := colorful.Hex(gradientEnd)
	ramp := make([]lipgloss.Color, length)
	for i := range ramp {
		ramp[i] = lipgloss.Color(start.BlendLuv(end, float64(i)/float64(length)).Hex())
	}
	return ramp
}

// GradientText colors each rune of str along the ramp. Strings shorter
// than three runes are returned as is.
func GradientText(base lipgloss.Style, str string) string {
	runes := []rune(str)
	if len(runes) < 3 {
		return str
	}
	var b strings.Builder
	for i, c := range GradientRamp(len(runes)) {
		b.WriteString(base.Foreground(c).Render(string(runes[i])))
	}
	return b.String()
}
