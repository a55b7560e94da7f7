package measure

import (
	"fmt"
	"strings"
)

// Units selects the unit system for formatted results.
type Units string

const (
	Metric   Units = "metric"
	Imperial Units = "imperial"
)

// ParseUnits parses "metric" or "imperial".
func ParseUnits(s string) (Units, error) {
	switch u := Units(strings.ToLower(strings.TrimSpace(s))); u {
	case Metric, Imperial:
		return u, nil
	default:
		return "", fmt.Errorf("unknown units %q", s)
	}
}

const (
	feetPerMeter         = 3.28084
	feetPerMile          = 5280
	metersPerKilometer   = 1000
	squareMetersPerHa    = 10000
	squareFeetPerMeterSq = 10.7639
	squareFeetPerAcre    = 43560
)

// FormatDistance formats meters: m below 1000, km from 1000; ft below one
// mile, mi from one mile.
func FormatDistance(meters float64, u Units) string {
	if u == Imperial {
		feet := meters * feetPerMeter
		if feet < feetPerMile {
			return fmt.Sprintf("%.2f ft", feet)
		}
		return fmt.Sprintf("%.2f mi", feet/feetPerMile)
	}
	if meters < metersPerKilometer {
		return fmt.Sprintf("%.2f m", meters)
	}
	return fmt.Sprintf("%.2f km", meters/metersPerKilometer)
}

// FormatArea formats square meters: sq m below one hectare, ha from one
// hectare; sq ft below one acre, ac from one acre.
func FormatArea(sqMeters float64, u Units) string {
	if u == Imperial {
		sqFeet := sqMeters * squareFeetPerMeterSq
		if sqFeet < squareFeetPerAcre {
			return fmt.Sprintf("%.2f sq ft", sqFeet)
		}
		return fmt.Sprintf("%.2f ac", sqFeet/squareFeetPerAcre)
	}
	if sqMeters < squareMetersPerHa {
		return fmt.Sprintf("%.2f sq m", sqMeters)
	}
	return fmt.Sprintf("%.2f ha", sqMeters/squareMetersPerHa)
}
