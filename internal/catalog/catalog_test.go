package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexOf(order []string) map[string]int {
	idx := make(map[string]int, len(order))
	for i, name := range order {
		idx[name] = i
	}
	return idx
}

func TestDefault_Orderings(t *testing.T) {
	c := Default()

	assert.Equal(t, []string{
		"sites", "workers",
		"locations", "purchase_orders",
		"invoices", "timesheets",
		"invoice_lines", "timesheet_entries",
	}, c.RestoreOrder())

	assert.Equal(t, []string{
		"timesheet_entries", "invoice_lines",
		"timesheets", "invoices",
		"purchase_orders", "locations",
		"workers", "sites",
	}, c.ClearOrder())

	assert.Len(t, c.Included(), len(DefaultTables))
}

func TestDefault_OrderingsRespectDependencies(t *testing.T) {
	c := Default()
	restore := indexOf(c.RestoreOrder())
	clear := indexOf(c.ClearOrder())

	for _, name := range c.Included() {
		require.Contains(t, restore, name)
		require.Contains(t, clear, name)
		for _, dep := range c.Dependencies(name) {
			assert.Less(t, restore[dep], restore[name], "%s must be restored after %s", name, dep)
			assert.Greater(t, clear[dep], clear[name], "%s must be cleared before %s", name, dep)
		}
	}
}

func TestDefault_Exclusion(t *testing.T) {
	c := Default()

	for _, name := range []string{"users", "USERS", "audit_log", "schema_migrations"} {
		assert.True(t, c.IsExcluded(name), name)
		assert.False(t, c.Contains(name), name)
	}
	assert.False(t, c.IsExcluded("sites"))
}

func TestRank(t *testing.T) {
	c := Default()

	rank, ok := c.Rank("sites")
	assert.True(t, ok)
	assert.Equal(t, 0, rank)

	rank, ok = c.Rank("invoice_lines")
	assert.True(t, ok)
	assert.Equal(t, 3, rank)

	_, ok = c.Rank("users")
	assert.False(t, ok)
}

func TestNew_InvalidGraphs(t *testing.T) {
	tests := []struct {
		name     string
		tables   []TableSpec
		excluded []string
		wantErr  error
	}{
		{
			name:    "cycle",
			tables:  []TableSpec{{Name: "a", DependsOn: []string{"b"}}, {Name: "b", DependsOn: []string{"c"}}, {Name: "c", DependsOn: []string{"a"}}},
			wantErr: ErrCycle,
		},
		{
			name:    "self reference",
			tables:  []TableSpec{{Name: "a", DependsOn: []string{"a"}}},
			wantErr: ErrCycle,
		},
		{
			name:    "dangling dependency",
			tables:  []TableSpec{{Name: "a", DependsOn: []string{"missing"}}},
			wantErr: ErrUnknownDependency,
		},
		{
			name:     "excluded table included",
			tables:   []TableSpec{{Name: "users"}},
			excluded: []string{"users"},
			wantErr:  ErrExcludedTable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.tables, tt.excluded)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_DuplicateAndEmpty(t *testing.T) {
	_, err := New([]TableSpec{{Name: "a"}, {Name: "a"}}, nil)
	assert.Error(t, err)

	_, err = New([]TableSpec{{Name: ""}}, nil)
	assert.Error(t, err)
}

func TestNew_DiamondRanks(t *testing.T) {
	c, err := New([]TableSpec{
		{Name: "d", DependsOn: []string{"b", "c"}},
		{Name: "c", DependsOn: []string{"a"}},
		{Name: "b", DependsOn: []string{"a"}},
		{Name: "a"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, c.RestoreOrder())
	assert.Equal(t, []string{"d", "c", "b", "a"}, c.ClearOrder())
}

func TestMustNew_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustNew([]TableSpec{{Name: "a", DependsOn: []string{"a"}}}, nil)
	})
}

func TestAccessorsReturnCopies(t *testing.T) {
	c := Default()
	order := c.RestoreOrder()
	order[0] = "tampered"
	assert.Equal(t, "sites", c.RestoreOrder()[0])
}
