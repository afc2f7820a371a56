package display

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestService(t *testing.T, mutate func(*DisplayConfig)) (*displayService, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	config := DefaultDisplayConfig()
	config.Writer = &buf
	config.UseIcons = false
	if mutate != nil {
		mutate(config)
	}
	return NewDisplayService(config).(*displayService), &buf
}

func TestDisplayService_StatusMessages(t *testing.T) {
	ds, buf := newTestService(t, nil)

	ds.Success("backup created")
	ds.Warning("table missing")
	ds.Error("restore refused")
	ds.Info("3 tables")

	assert.Equal(t, "[SUCCESS] backup created\n[WARNING] table missing\n[ERROR] restore refused\n[INFO] 3 tables\n", buf.String())
	assert.False(t, ds.colorSystem.IsColorSupported())
}

func TestDisplayService_QuietKeepsErrors(t *testing.T) {
	ds, buf := newTestService(t, func(c *DisplayConfig) { c.QuietMode = true })

	ds.PrintHeader("Backups")
	ds.Info("hidden")
	ds.Success("hidden")
	ds.PrintTable([]string{"Name"}, [][]string{{"b1"}})
	ds.Error("shown")

	assert.Equal(t, "[ERROR] shown\n", buf.String())
}

func TestDisplayService_PrintTable(t *testing.T) {
	ds, buf := newTestService(t, nil)

	ds.PrintTable([]string{"Name", "Rows"}, [][]string{{"sites", "2"}, {"locations", "3"}})

	out := buf.String()
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "locations")
	assert.Contains(t, out, "+")
}

func TestDisplayService_StructuredTable(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		ds, buf := newTestService(t, func(c *DisplayConfig) { c.OutputFormat = string(FormatJSON) })
		ds.PrintHeader("ignored")
		ds.PrintTable([]string{"Name", "Rows"}, [][]string{{"sites", "2"}})

		var records []map[string]string
		require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
		assert.Equal(t, []map[string]string{{"Name": "sites", "Rows": "2"}}, records)
	})

	t.Run("yaml", func(t *testing.T) {
		ds, buf := newTestService(t, func(c *DisplayConfig) { c.OutputFormat = string(FormatYAML) })
		ds.PrintObject("Backup", map[string]interface{}{"name": "b1", "records": 5})

		var out map[string]interface{}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
		assert.Equal(t, "b1", out["name"])
		assert.Equal(t, 5, out["records"])
	})
}

func TestDisplayService_PrintObject(t *testing.T) {
	ds, buf := newTestService(t, nil)

	ds.PrintObject("Backup", map[string]interface{}{"records": 5, "name": "b1"})

	assert.Equal(t, "--- Backup ---\n  name:     b1\n  records:  5\n", buf.String())
}

func TestDisplayService_Confirm(t *testing.T) {
	t.Run("assume yes", func(t *testing.T) {
		ds, _ := newTestService(t, func(c *DisplayConfig) { c.AssumeYes = true })
		ok, err := ds.Confirm("Restore?")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("non-terminal input refuses", func(t *testing.T) {
		r, w, err := os.Pipe()
		require.NoError(t, err)
		defer r.Close()
		defer w.Close()

		ds, _ := newTestService(t, func(c *DisplayConfig) { c.Input = r })
		ok, err := ds.Confirm("Restore?")
		assert.ErrorIs(t, err, ErrNotInteractive)
		assert.False(t, ok)
	})

	t.Run("reads answers", func(t *testing.T) {
		for answer, want := range map[string]bool{"y\n": true, "YES\n": true, "\n": false, "maybe\nn\n": false} {
			r, w, err := os.Pipe()
			require.NoError(t, err)
			_, err = w.WriteString(answer)
			require.NoError(t, err)
			w.Close()

			var out bytes.Buffer
			ok, err := confirm(&out, r, "Restore?", func(int) bool { return true })
			r.Close()
			require.NoError(t, err, answer)
			assert.Equal(t, want, ok, answer)
			assert.Contains(t, out.String(), "Restore? [y/N]: ")
		}
	})
}

func TestDisplayConfig_Validate(t *testing.T) {
	config := DefaultDisplayConfig()
	require.NoError(t, config.Validate())

	config.Theme = "neon"
	config.OutputFormat = "xml"
	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neon")
	assert.Contains(t, err.Error(), "xml")
}

func TestRenderIcon(t *testing.T) {
	assert.Equal(t, "[OK]", renderIcon("success", false))
	assert.Equal(t, "✓", renderIcon("success", true))
	assert.Empty(t, renderIcon("unknown", true))

	ds, _ := newTestService(t, nil)
	assert.Empty(t, ds.RenderIcon("success"))
}
