package display

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
)

const defaultTerminalWidth = 100

// renderTable writes rows under headers as a bordered table. Long cells are
// wrapped to the terminal width.
func renderTable(writer io.Writer, headers []string, rows [][]string) {
	table := tablewriter.NewWriter(writer)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(true)
	if len(headers) > 0 {
		table.SetColWidth(terminalWidth() / len(headers))
	}
	table.AppendBulk(rows)
	table.Render()
}

func terminalWidth() int {
	width, _, err := term.GetSize(0)
	if err != nil || width <= 0 {
		return defaultTerminalWidth
	}
	return width
}
