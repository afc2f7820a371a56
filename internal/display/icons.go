package display

import (
	"os"
)

// Icon represents a visual icon with Unicode and ASCII fallbacks
type Icon struct {
	Unicode string
	ASCII   string
}

var icons = map[string]Icon{
	"success": {Unicode: "✓", ASCII: "[OK]"},
	"error":   {Unicode: "✗", ASCII: "[X]"},
	"warning": {Unicode: "⚠", ASCII: "[!]"},
	"info":    {Unicode: "ℹ", ASCII: "[i]"},
	"backup":  {Unicode: "▣", ASCII: "[B]"},
	"lock":    {Unicode: "🔒", ASCII: "[E]"},
	"table":   {Unicode: "▤", ASCII: "[T]"},
}

// renderIcon returns the icon for name, or "" for an unknown name
func renderIcon(name string, unicode bool) string {
	icon, ok := icons[name]
	if !ok {
		return ""
	}
	if unicode {
		return icon.Unicode
	}
	return icon.ASCII
}

func detectUnicodeSupport() bool {
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}
	if os.Getenv("LANG") == "C" || os.Getenv("LC_ALL") == "C" {
		return false
	}
	term := os.Getenv("TERM")
	return term != "dumb" && term != "vt100"
}
