package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-recmap/internal/measure"
	"github.com/joeblew999/plat-recmap/internal/record"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Popup.MaxFields)
	assert.Equal(t, measure.Metric, cfg.Measure.Units)
	assert.Equal(t, measure.Geodesic, cfg.Measure.AreaMethod)
	assert.Equal(t, 3*time.Second, cfg.Map.FallbackTimeout)
	assert.Len(t, cfg.Map.Palette, 15)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "records", cfg.Records.Table)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
records:
  table: parcels
  color_field: status
  geometry_columns: [boundary, site]
  columns:
    - key: name
      label: Parcel name
      permission: edit
    - key: owner
      permission: hidden
map:
  fit_padding: 40
  fallback_timeout: 500ms
  style:
    color: "#ff0000"
    fill_opacity: 0.5
measure:
  units: imperial
  area_method: bbox
popup:
  max_fields: 6
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "parcels", cfg.Records.Table)
	assert.Equal(t, "id", cfg.Records.IDField)
	assert.Equal(t, "status", cfg.Records.ColorField)
	assert.Equal(t, []string{"boundary", "site"}, cfg.Records.GeometryColumns)
	require.Len(t, cfg.Records.Columns, 2)
	assert.Equal(t, record.Column{Key: "name", Label: "Parcel name", Permission: record.PermissionEdit}, cfg.Records.Columns[0])
	assert.Equal(t, 40, cfg.Map.FitPadding)
	assert.Equal(t, 500*time.Millisecond, cfg.Map.FallbackTimeout)
	assert.Equal(t, "#ff0000", cfg.Map.Style.Color)
	assert.Equal(t, 0.5, cfg.Map.Style.FillOpacity)
	assert.Equal(t, 2.0, cfg.Map.Style.Weight, "unset keys keep defaults")
	assert.Equal(t, measure.Imperial, cfg.Measure.Units)
	assert.Equal(t, measure.BoundingBox, cfg.Measure.AreaMethod)
	assert.Equal(t, 6, cfg.Popup.MaxFields)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for name, body := range map[string]string{
		"units":      "measure:\n  units: cubits\n",
		"method":     "measure:\n  area_method: shoelace\n",
		"permission": "records:\n  columns:\n    - key: a\n      permission: admin\n",
		"table":      "records:\n  table: \"\"\n",
		"yaml":       "records: [",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
