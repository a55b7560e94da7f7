package geometry

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// LoadWKTDecoder returns the orb WKT decoder as a backing Decoder.
// It matches the loader signature used by the map runtime so it can be
// swapped for a slower or failing source in tests.
func LoadWKTDecoder(ctx context.Context) (Decoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return func(s string) (orb.Geometry, error) {
		return wkt.Unmarshal(s)
	}, nil
}
