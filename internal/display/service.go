package display

import (
	"io"
)

// DisplayService provides centralized formatting and output management for the CLI
type DisplayService interface {
	PrintHeader(title string)
	PrintTable(headers []string, rows [][]string)
	// PrintObject writes structured results as JSON or YAML, or as
	// key/value lines in table format
	PrintObject(title string, content interface{})

	Success(message string)
	Warning(message string)
	Error(message string)
	Info(message string)

	// Confirm asks a yes/no question. It refuses without asking when input
	// is not a terminal, unless the configuration assumes yes.
	Confirm(question string) (bool, error)

	RenderIcon(name string) string

	SetOutput(writer io.Writer)
	GetConfig() *DisplayConfig
}

// OutputFormat represents different output format options
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// Color represents terminal color options
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorGreen
	ColorYellow
	ColorBlue
	ColorCyan
	ColorWhite
	ColorBrightRed
	ColorBrightGreen
	ColorBrightYellow
	ColorBrightBlue
	ColorBrightCyan
)

// ColorTheme defines color scheme for different message types
type ColorTheme struct {
	Primary Color
	Success Color
	Warning Color
	Error   Color
	Info    Color
	Muted   Color
}
