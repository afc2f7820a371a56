package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"mysql-data-vault/internal/backup"
	"mysql-data-vault/internal/display"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the table catalog in restore order",
	Long: `Show the tables covered by backups in the order they are restored.
Tables are cleared in the reverse order.

The catalog comes from the config file, or the built-in default when the
file defines none. No database connection or signing secret is needed.`,
	Args: cobra.NoArgs,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

type catalogEntry struct {
	Rank         int      `json:"rank" yaml:"rank"`
	Table        string   `json:"table" yaml:"table"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
}

type catalogListing struct {
	Tables   []catalogEntry `json:"tables" yaml:"tables"`
	Excluded []string       `json:"excluded" yaml:"excluded"`
}

func runCatalog(cmd *cobra.Command, args []string) error {
	displayConfig, err := buildDisplayConfig()
	if err != nil {
		return err
	}
	displayConfig.Writer = cmd.OutOrStdout()

	cat, err := backup.NewConfigLoader(cfgFile).LoadCatalog()
	if err != nil {
		return err
	}

	listing := catalogListing{Excluded: cat.Excluded()}
	for _, table := range cat.RestoreOrder() {
		rank, _ := cat.Rank(table)
		listing.Tables = append(listing.Tables, catalogEntry{
			Rank:         rank,
			Table:        table,
			Dependencies: cat.Dependencies(table),
		})
	}

	ds := display.NewDisplayService(displayConfig)
	if displayConfig.IsStructured() {
		ds.PrintObject("", listing)
		return nil
	}

	rows := make([][]string, 0, len(listing.Tables))
	for _, entry := range listing.Tables {
		rows = append(rows, []string{strconv.Itoa(entry.Rank), entry.Table, strings.Join(entry.Dependencies, ", ")})
	}
	ds.PrintHeader(fmt.Sprintf("Catalog (%d tables)", cat.Len()))
	ds.PrintTable([]string{"Rank", "Table", "Depends On"}, rows)
	if len(listing.Excluded) > 0 {
		ds.Info(fmt.Sprintf("Never backed up: %s", strings.Join(listing.Excluded, ", ")))
	}
	return nil
}
