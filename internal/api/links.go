package api

import (
	"fmt"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// links maps operation paths to their RFC 8288 Link header values.
var links = map[string][]string{
	"/health": {
		`</api/v1/info>; rel="info"`,
		`</api/v1/features>; rel="features"`,
		`</api/v1/legend>; rel="legend"`,
	},
	"/api/v1/features": {
		`</api/v1/map>; rel="map"`,
		`</api/v1/legend>; rel="legend"`,
	},
	"/api/v1/map": {
		`</api/v1/features>; rel="features"`,
		`</api/v1/measure>; rel="measure"`,
	},
	"/api/v1/legend": {
		`</api/v1/legend/toggle>; rel="toggle"`,
		`</api/v1/legend/show-all>; rel="show-all"`,
	},
	"/api/v1/measure": {
		`</api/v1/measure/mode>; rel="mode"`,
		`</api/v1/measure/units>; rel="units"`,
		`</api/v1/measure/clear>; rel="clear"`,
	},
	"/api/v1/features/{handle}/popup": {
		`</api/v1/features>; rel="collection"`,
	},
}

// LinkTransformer returns a Huma Transformer that injects RFC 8288 Link headers.
func LinkTransformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range links[op.Path] {
			ctx.AppendHeader("Link", link)
		}

		// Item endpoints get a self link
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}

		return v, nil
	}
}
