package catalog

// DefaultExcluded holds credential, session, audit and schema-version tables.
// They are never captured and never wiped.
var DefaultExcluded = []string{
	"users",
	"sessions",
	"password_resets",
	"audit_log",
	"schema_migrations",
}

// DefaultTables is the operational data set of the timesheet application
var DefaultTables = []TableSpec{
	{Name: "sites"},
	{Name: "workers"},
	{Name: "locations", DependsOn: []string{"sites"}},
	{Name: "purchase_orders", DependsOn: []string{"sites"}},
	{Name: "timesheets", DependsOn: []string{"workers", "locations", "purchase_orders"}},
	{Name: "timesheet_entries", DependsOn: []string{"timesheets"}},
	{Name: "invoices", DependsOn: []string{"purchase_orders"}},
	{Name: "invoice_lines", DependsOn: []string{"invoices", "timesheets"}},
}

var defaultCatalog = MustNew(DefaultTables, DefaultExcluded)

// Default returns the built-in catalog
func Default() *Catalog {
	return defaultCatalog
}
