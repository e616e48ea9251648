package theming

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/omigeot/server/internal/domain"
)

// brightFallback replaces element colours too light to read on a white page.
const brightFallback = "#555555"

var defaultColorPattern = regexp.MustCompile("(?i)" + regexp.QuoteMeta(domain.DefaultThemingColor))

// ElementColor returns a colour usable for icons on a light background.
func ElementColor(color string) string {
	if CalculateLuminance(color) > 0.8 {
		return brightFallback
	}
	return color
}

// CalculateLuminance returns the perceived brightness of a hex colour in [0, 1].
// Three-digit shorthand is accepted. Unparseable input yields 0.
func CalculateLuminance(color string) float64 {
	c, ok := parseHex(color)
	if !ok {
		return 0
	}
	return 0.299*c.R + 0.587*c.G + 0.114*c.B
}

// ColorizeSVG swaps the stock brand colour for color, ignoring case.
func ColorizeSVG(svg []byte, color string) []byte {
	return defaultColorPattern.ReplaceAllLiteral(svg, []byte(color))
}

// IsSVG reports whether data looks like an SVG document.
func IsSVG(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimSpace(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")))
	s := strings.ToLower(string(head))
	return strings.HasPrefix(s, "<svg") || (strings.HasPrefix(s, "<?xml") || strings.HasPrefix(s, "<!--")) && strings.Contains(s, "<svg")
}

func parseHex(color string) (colorful.Color, bool) {
	color = strings.TrimSpace(color)
	if !strings.HasPrefix(color, "#") {
		color = "#" + color
	}
	if len(color) != 4 && len(color) != 7 {
		return colorful.Color{}, false
	}
	c, err := colorful.Hex(color)
	if err != nil {
		return colorful.Color{}, false
	}
	return c, true
}
