package geometry

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// minRingPoints is the number of distinct coordinate pairs a ring needs.
const minRingPoints = 3

var (
	// Innermost coordinate lists: the third "(" group for MULTIPOLYGON,
	// the second for POLYGON.
	multiPolygonBody = regexp.MustCompile(`^MULTIPOLYGON\s*(?:Z|M|ZM)?\s*\(\s*\(\s*\(([^()]*)\)`)
	polygonBody      = regexp.MustCompile(`^POLYGON\s*(?:Z|M|ZM)?\s*\(\s*\(([^()]*)\)`)
	pointBody        = regexp.MustCompile(`POINT\s*(?:Z|M|ZM)?\s*\(\s*([^\s(),]+)\s+([^\s(),]+)[^()]*\)`)
	coordinatePair   = regexp.MustCompile(`^\s*([-+]?[0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?)\s*,\s*([-+]?[0-9]*\.?[0-9]+(?:[eE][-+]?[0-9]+)?)\s*$`)
)

// Decoder is a backing WKT decoder consulted when the manual parser fails.
type Decoder func(wkt string) (orb.Geometry, error)

// Parser converts raw attribute values into Geometry.
// The zero value is not usable; create one with NewParser.
type Parser struct {
	log      *zap.Logger
	fallback Decoder
}

// NewParser creates a parser that logs recoverable failures to log.
// fallback may be nil.
func NewParser(log *zap.Logger, fallback Decoder) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("geometry"), fallback: fallback}
}

// HasFallback reports whether a backing decoder is configured.
func (p *Parser) HasFallback() bool { return p.fallback != nil }

// Parse returns the geometry encoded in raw, or nil when raw is not a string
// or cannot be parsed. It never panics on malformed input.
func (p *Parser) Parse(raw any) Geometry {
	s, ok := raw.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	upper := strings.ToUpper(s)

	// Truncated multipolygons never reach the fallback: a partial shape is
	// worse than no shape.
	if strings.HasPrefix(upper, "MULTIPOLYGON") && !strings.Contains(upper, ")))") {
		p.log.Warn("dropping truncated multipolygon", zap.String("raw", clip(s)))
		return nil
	}

	if g := p.parseManual(upper); g != nil {
		return g
	}
	if p.fallback != nil {
		if g := p.parseFallback(s); g != nil {
			return g
		}
	}

	p.log.Warn("unparseable geometry", zap.String("raw", clip(s)))
	return nil
}

func (p *Parser) parseManual(upper string) Geometry {
	switch {
	case strings.HasPrefix(upper, "MULTIPOLYGON"):
		m := multiPolygonBody.FindStringSubmatch(upper)
		if m == nil {
			return nil
		}
		ring := p.parseRing(m[1])
		if ring == nil {
			return nil
		}
		return MultiPolygon{Polygons: []Polygon{{Ring: ring}}}

	case strings.HasPrefix(upper, "POLYGON"):
		m := polygonBody.FindStringSubmatch(upper)
		if m == nil {
			return nil
		}
		ring := p.parseRing(m[1])
		if ring == nil {
			return nil
		}
		return Polygon{Ring: ring}
	}

	return parsePointLike(upper)
}

// parseRing parses "x y, x y, ..." into a closed ring, discarding bad tokens.
func (p *Parser) parseRing(body string) orb.Ring {
	tokens := strings.Split(body, ",")
	ring := make(orb.Ring, 0, len(tokens)+1)
	for _, tok := range tokens {
		fields := strings.Fields(tok)
		if len(fields) != 2 {
			p.log.Warn("discarding coordinate token", zap.String("token", clip(tok)))
			continue
		}
		lng, err1 := parseFinite(fields[0])
		lat, err2 := parseFinite(fields[1])
		if err1 != nil || err2 != nil {
			p.log.Warn("discarding coordinate token", zap.String("token", clip(tok)))
			continue
		}
		ring = append(ring, orb.Point{lng, lat})
	}
	if len(ring) < minRingPoints {
		p.log.Warn("ring has too few coordinates", zap.Int("valid", len(ring)))
		return nil
	}
	return closeRing(ring)
}

func parsePointLike(upper string) Geometry {
	if strings.Contains(upper, "POINT") {
		m := pointBody.FindStringSubmatch(upper)
		if m == nil {
			return nil
		}
		x, err1 := parseFinite(m[1])
		y, err2 := parseFinite(m[2])
		if err1 != nil || err2 != nil {
			return nil
		}
		return Point{Lat: y, Lng: x}
	}

	m := coordinatePair.FindStringSubmatch(upper)
	if m == nil {
		return nil
	}
	first, err1 := parseFinite(m[1])
	second, err2 := parseFinite(m[2])
	if err1 != nil || err2 != nil {
		return nil
	}
	if math.Abs(first) <= 90 {
		return Point{Lat: first, Lng: second}
	}
	return Point{Lat: second, Lng: first}
}

func (p *Parser) parseFallback(s string) Geometry {
	g, err := p.fallback(s)
	if err != nil {
		p.log.Debug("fallback decoder rejected geometry", zap.Error(err))
		return nil
	}
	return p.fromOrb(g)
}

// fromOrb applies the same ring rules to decoder output: outer rings only,
// at least three points, always closed.
func (p *Parser) fromOrb(g orb.Geometry) Geometry {
	switch g := g.(type) {
	case orb.Point:
		if !finite(g[0]) || !finite(g[1]) {
			return nil
		}
		return Point{Lat: g[1], Lng: g[0]}
	case orb.Polygon:
		ring := p.outerRing(g)
		if ring == nil {
			return nil
		}
		return Polygon{Ring: ring}
	case orb.MultiPolygon:
		var polys []Polygon
		for _, poly := range g {
			if ring := p.outerRing(poly); ring != nil {
				polys = append(polys, Polygon{Ring: ring})
			}
		}
		if len(polys) == 0 {
			return nil
		}
		return MultiPolygon{Polygons: polys}
	default:
		return nil
	}
}

func (p *Parser) outerRing(poly orb.Polygon) orb.Ring {
	if len(poly) == 0 {
		return nil
	}
	ring := make(orb.Ring, 0, len(poly[0])+1)
	for _, pt := range poly[0] {
		if finite(pt[0]) && finite(pt[1]) {
			ring = append(ring, pt)
		}
	}
	if ring = closeRing(ring); distinctPoints(ring) < minRingPoints {
		return nil
	}
	return ring
}

// distinctPoints counts ring vertices excluding the closing point.
func distinctPoints(r orb.Ring) int {
	if len(r) > 1 && r[0] == r[len(r)-1] {
		return len(r) - 1
	}
	return len(r)
}

func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if !finite(f) {
		return 0, strconv.ErrRange
	}
	return f, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func clip(s string) string {
	const limit = 120
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
