// Package config loads the recmap YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-recmap/internal/measure"
	"github.com/joeblew999/plat-recmap/internal/palette"
	"github.com/joeblew999/plat-recmap/internal/record"
	"github.com/joeblew999/plat-recmap/internal/surface"
)

// Config is the viewer configuration.
type Config struct {
	Records RecordsConfig `yaml:"records"`
	Map     MapConfig     `yaml:"map"`
	Popup   PopupConfig   `yaml:"popup"`
	Measure MeasureConfig `yaml:"measure"`
}

// RecordsConfig describes the record table and its columns.
type RecordsConfig struct {
	Table           string          `yaml:"table"`
	IDField         string          `yaml:"id_field"`
	GeometryColumns []string        `yaml:"geometry_columns"`
	ColorField      string          `yaml:"color_field"`
	Columns         []record.Column `yaml:"columns"`
}

// MapConfig configures the map surface.
type MapConfig struct {
	Container       string            `yaml:"container"`
	BaseLayer       surface.BaseLayer `yaml:"base_layer"`
	FitPadding      int               `yaml:"fit_padding"`
	Style           surface.Style     `yaml:"style"`
	Palette         palette.Palette   `yaml:"palette"`
	FallbackTimeout time.Duration     `yaml:"fallback_timeout"`
}

// PopupConfig configures detail panels.
type PopupConfig struct {
	MaxFields int `yaml:"max_fields"`
}

// MeasureConfig configures the measurement tools.
type MeasureConfig struct {
	Units      measure.Units      `yaml:"units"`
	AreaMethod measure.AreaMethod `yaml:"area_method"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Records: RecordsConfig{
			Table:           "records",
			IDField:         "id",
			GeometryColumns: []string{"geometry"},
		},
		Map: MapConfig{
			Container: "map",
			BaseLayer: surface.BaseLayer{
				URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
				Attribution: "&copy; OpenStreetMap contributors",
			},
			FitPadding: 20,
			Style: surface.Style{
				Color:       "#3388ff",
				FillColor:   "#3388ff",
				Weight:      2,
				Opacity:     0.8,
				FillOpacity: 0.35,
			},
			Palette:         palette.Default,
			FallbackTimeout: 3 * time.Second,
		},
		Popup:   PopupConfig{MaxFields: 8},
		Measure: MeasureConfig{Units: measure.Metric, AreaMethod: measure.Geodesic},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated values.
func (c Config) Validate() error {
	if c.Records.Table == "" {
		return errors.New("records.table is required")
	}
	if _, err := measure.ParseUnits(string(c.Measure.Units)); err != nil {
		return err
	}
	switch c.Measure.AreaMethod {
	case measure.Geodesic, measure.BoundingBox:
	default:
		return fmt.Errorf("unknown area method %q", c.Measure.AreaMethod)
	}
	for _, col := range c.Records.Columns {
		switch col.Permission {
		case "", record.PermissionView, record.PermissionEdit, record.PermissionHidden:
		default:
			return fmt.Errorf("column %s: unknown permission %q", col.Key, col.Permission)
		}
	}
	if c.Popup.MaxFields < 0 {
		return errors.New("popup.max_fields must not be negative")
	}
	return nil
}
