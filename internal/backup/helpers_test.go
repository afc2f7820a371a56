package backup

import (
	"testing"

	"mysql-data-vault/internal/catalog"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-test-secret"

func testCatalog() *catalog.Catalog {
	return catalog.MustNew([]catalog.TableSpec{
		{Name: "sites"},
		{Name: "locations", DependsOn: []string{"sites"}},
	}, []string{"users", "audit_log"})
}

func newTestSealer(t *testing.T) *Sealer {
	t.Helper()
	sealer, err := NewSealer([]byte(testSecret))
	require.NoError(t, err)
	return sealer
}

func sampleTables() map[string][]Row {
	return map[string][]Row{
		"sites": {
			{"id": 1, "name": "North Yard"},
			{"id": 2, "name": "South Depot"},
		},
		"locations": {
			{"id": 10, "site_id": 1, "label": "Gate A"},
			{"id": 11, "site_id": 1, "label": "Gate B"},
			{"id": 12, "site_id": 2, "label": "Dock 1"},
		},
	}
}
