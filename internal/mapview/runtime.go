// Package mapview renders a record set onto a map surface and keeps the
// legend, measurement and popup controllers in step with it.
package mapview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joeblew999/plat-recmap/internal/geometry"
	"github.com/joeblew999/plat-recmap/internal/surface"
)

var (
	// ErrRuntimeUnavailable is returned when the mapping runtime fails to load.
	ErrRuntimeUnavailable = errors.New("mapping runtime unavailable")
	// ErrNotReady is returned by operations that need an opened view.
	ErrNotReady = errors.New("map view not ready")
)

// DefaultFallbackTimeout bounds the WKT fallback decoder load.
const DefaultFallbackTimeout = 3 * time.Second

// DecoderLoader makes the WKT fallback decoder available.
type DecoderLoader func(ctx context.Context) (geometry.Decoder, error)

// Capabilities are the handles produced by a successful Init.
type Capabilities struct {
	Factory surface.Factory
	// Decoder is nil when the fallback failed to load or timed out.
	Decoder geometry.Decoder
}

// RuntimeOptions configures a Runtime.
type RuntimeOptions struct {
	FallbackTimeout time.Duration
	Logger          *zap.Logger
}

// Runtime loads the mapping runtime and the fallback decoder once.
type Runtime struct {
	loadSurface surface.Loader
	loadDecoder DecoderLoader
	timeout     time.Duration
	log         *zap.Logger

	once sync.Once
	done chan struct{}
	caps Capabilities
	err  error
}

// NewRuntime creates a runtime. loadDecoder may be nil, in which case only
// the manual parser is used.
func NewRuntime(loadSurface surface.Loader, loadDecoder DecoderLoader, opts RuntimeOptions) *Runtime {
	if opts.FallbackTimeout <= 0 {
		opts.FallbackTimeout = DefaultFallbackTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runtime{
		loadSurface: loadSurface,
		loadDecoder: loadDecoder,
		timeout:     opts.FallbackTimeout,
		log:         opts.Logger.Named("runtime"),
		done:        make(chan struct{}),
	}
}

// Init starts loading on first call and waits for the result. Concurrent and
// repeated calls share one load. ctx only bounds this caller's wait.
func (r *Runtime) Init(ctx context.Context) (Capabilities, error) {
	r.once.Do(func() { go r.load() })

	select {
	case <-r.done:
		return r.caps, r.err
	case <-ctx.Done():
		return Capabilities{}, ctx.Err()
	}
}

func (r *Runtime) load() {
	defer close(r.done)

	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()

	decoded := make(chan geometry.Decoder, 1)
	if r.loadDecoder != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()
			d, err := r.loadDecoder(ctx)
			if err != nil {
				r.log.Warn("wkt fallback unavailable, using manual parser only", zap.Error(err))
				d = nil
			}
			decoded <- d
		}()
	} else {
		decoded <- nil
	}

	factory, err := r.loadSurface(context.Background())
	if err != nil {
		r.err = fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
		r.log.Error("mapping runtime failed to load", zap.Error(err))
		return
	}
	if factory == nil {
		r.err = fmt.Errorf("%w: loader returned no factory", ErrRuntimeUnavailable)
		return
	}

	var dec geometry.Decoder
	select {
	case dec = <-decoded:
	case <-deadline.C:
		r.log.Warn("wkt fallback load timed out, using manual parser only",
			zap.Duration("timeout", r.timeout))
	}

	r.caps = Capabilities{Factory: factory, Decoder: dec}
	r.log.Info("mapping runtime ready", zap.Bool("wkt_fallback", dec != nil))
}
