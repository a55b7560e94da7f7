package mapview

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-recmap/internal/geometry"
	"github.com/joeblew999/plat-recmap/internal/surface"
)

func countingLoader(f surface.Factory, calls *atomic.Int32, delay time.Duration) surface.Loader {
	return func(ctx context.Context) (surface.Factory, error) {
		calls.Add(1)
		time.Sleep(delay)
		return f, nil
	}
}

func TestInitLoadsOnceForConcurrentCallers(t *testing.T) {
	var surfaceCalls, decoderCalls atomic.Int32
	rt := NewRuntime(
		countingLoader(surface.NewRuntime(), &surfaceCalls, 20*time.Millisecond),
		func(ctx context.Context) (geometry.Decoder, error) {
			decoderCalls.Add(1)
			return geometry.LoadWKTDecoder(ctx)
		},
		RuntimeOptions{},
	)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			caps, err := rt.Init(context.Background())
			assert.NoError(t, err)
			assert.NotNil(t, caps.Factory)
			assert.NotNil(t, caps.Decoder)
		}()
	}
	wg.Wait()

	_, err := rt.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), surfaceCalls.Load())
	assert.Equal(t, int32(1), decoderCalls.Load())
}

func TestInitFallbackTimeoutContinues(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	rt := NewRuntime(
		surface.NewRuntime().Loader(),
		func(ctx context.Context) (geometry.Decoder, error) {
			<-release
			return nil, errors.New("too late")
		},
		RuntimeOptions{FallbackTimeout: 30 * time.Millisecond},
	)

	start := time.Now()
	caps, err := rt.Init(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, caps.Factory)
	assert.Nil(t, caps.Decoder)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestInitFallbackFailureContinues(t *testing.T) {
	rt := NewRuntime(
		surface.NewRuntime().Loader(),
		func(ctx context.Context) (geometry.Decoder, error) { return nil, errors.New("no decoder") },
		RuntimeOptions{},
	)
	caps, err := rt.Init(context.Background())
	require.NoError(t, err)
	assert.Nil(t, caps.Decoder)
}

func TestInitSurfaceFailureIsFatal(t *testing.T) {
	var calls atomic.Int32
	rt := NewRuntime(
		func(ctx context.Context) (surface.Factory, error) {
			calls.Add(1)
			return nil, errors.New("script blocked")
		},
		nil,
		RuntimeOptions{},
	)

	_, err := rt.Init(context.Background())
	require.ErrorIs(t, err, ErrRuntimeUnavailable)
	assert.Contains(t, err.Error(), "script blocked")

	_, err = rt.Init(context.Background())
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "failure is memoized, not retried")
}

func TestInitCallerContextBoundsWait(t *testing.T) {
	release := make(chan struct{})
	rt := NewRuntime(
		func(ctx context.Context) (surface.Factory, error) {
			<-release
			return surface.NewRuntime(), nil
		},
		nil,
		RuntimeOptions{},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rt.Init(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	caps, err := rt.Init(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, caps.Factory)
}
