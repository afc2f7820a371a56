package display

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type displayService struct {
	config      *DisplayConfig
	colorSystem ColorSystem
	theme       ColorTheme
	unicode     bool
	writer      io.Writer
	isTerminal  func(int) bool
}

// NewDisplayService creates a new display service with the given configuration
func NewDisplayService(config *DisplayConfig) DisplayService {
	if config == nil {
		config = DefaultDisplayConfig()
	}
	config.SetDefaults()

	return &displayService{
		config:      config,
		colorSystem: NewColorSystem(config.Writer, config.IsColorEnabled()),
		theme:       config.GetColorTheme(),
		unicode:     detectUnicodeSupport(),
		writer:      config.Writer,
		isTerminal:  stdinIsTerminal,
	}
}

// PrintHeader prints a formatted header
func (ds *displayService) PrintHeader(title string) {
	if ds.config.QuietMode || ds.config.IsStructured() {
		return
	}

	separator := strings.Repeat("=", len(title)+4)
	fmt.Fprint(ds.writer, ds.colorSystem.Colorize(fmt.Sprintf("\n%s\n  %s  \n%s\n", separator, title, separator), ds.theme.Primary))
}

// PrintTable prints rows as a table, or as a list of objects keyed by header
// in JSON and YAML output
func (ds *displayService) PrintTable(headers []string, rows [][]string) {
	if ds.config.IsStructured() {
		records := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			record := make(map[string]string, len(headers))
			for i, header := range headers {
				if i < len(row) {
					record[header] = row[i]
				}
			}
			records = append(records, record)
		}
		ds.printStructured(records)
		return
	}
	if ds.config.QuietMode {
		return
	}
	renderTable(ds.writer, headers, rows)
}

// PrintObject prints content under title
func (ds *displayService) PrintObject(title string, content interface{}) {
	if ds.config.IsStructured() {
		ds.printStructured(content)
		return
	}
	if ds.config.QuietMode {
		return
	}

	if title != "" {
		fmt.Fprintln(ds.writer, ds.colorSystem.Colorize(fmt.Sprintf("--- %s ---", title), ds.theme.Primary))
	}

	fields, ok := content.(map[string]interface{})
	if !ok {
		fmt.Fprintf(ds.writer, "%v\n", content)
		return
	}

	keys := make([]string, 0, len(fields))
	width := 0
	for k := range fields {
		keys = append(keys, k)
		if len(k)+1 > width {
			width = len(k) + 1
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(ds.writer, "  %s  %v\n", ds.colorSystem.Sprintf(ds.theme.Muted, "%-*s", width, k+":"), fields[k])
	}
}

// Success prints a success message
func (ds *displayService) Success(message string) {
	ds.printStatusMessage("success", message, ds.theme.Success)
}

// Warning prints a warning message
func (ds *displayService) Warning(message string) {
	ds.printStatusMessage("warning", message, ds.theme.Warning)
}

// Error prints an error message. Errors are shown even in quiet mode.
func (ds *displayService) Error(message string) {
	ds.printStatusMessage("error", message, ds.theme.Error)
}

// Info prints an info message
func (ds *displayService) Info(message string) {
	ds.printStatusMessage("info", message, ds.theme.Info)
}

// Confirm asks question unless the configuration assumes yes
func (ds *displayService) Confirm(question string) (bool, error) {
	if ds.config.AssumeYes {
		return true, nil
	}
	return confirm(ds.statusWriter(), ds.config.Input, question, ds.isTerminal)
}

// RenderIcon returns the icon for name, or "" when icons are disabled
func (ds *displayService) RenderIcon(name string) string {
	if !ds.config.UseIcons {
		return ""
	}
	return renderIcon(name, ds.unicode)
}

// SetOutput sets the output writer
func (ds *displayService) SetOutput(writer io.Writer) {
	ds.writer = writer
	ds.config.Writer = writer
	ds.colorSystem = NewColorSystem(writer, ds.config.IsColorEnabled())
}

// GetConfig returns the current configuration
func (ds *displayService) GetConfig() *DisplayConfig {
	return ds.config
}

// statusWriter keeps status lines off stdout when stdout carries JSON or YAML
func (ds *displayService) statusWriter() io.Writer {
	if ds.config.IsStructured() && ds.writer == os.Stdout {
		return os.Stderr
	}
	return ds.writer
}

func (ds *displayService) printStatusMessage(level, message string, clr Color) {
	if ds.config.QuietMode && level != "error" {
		return
	}

	prefix := ds.RenderIcon(level)
	if prefix == "" {
		prefix = fmt.Sprintf("[%s]", strings.ToUpper(level))
	}
	fmt.Fprintf(ds.statusWriter(), "%s %s\n", ds.colorSystem.Colorize(prefix, clr), message)
}

func (ds *displayService) printStructured(content interface{}) {
	if ds.config.OutputFormat == string(FormatYAML) {
		data, err := yaml.Marshal(content)
		if err != nil {
			fmt.Fprintf(ds.writer, "Error formatting YAML: %v\n", err)
			return
		}
		fmt.Fprint(ds.writer, string(data))
		return
	}

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		fmt.Fprintf(ds.writer, "Error formatting JSON: %v\n", err)
		return
	}
	fmt.Fprintln(ds.writer, string(data))
}
