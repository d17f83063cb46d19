package otel

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/markercast/engine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func enabledConfig() config.OTelConfig {
	return config.OTelConfig{
		Enabled:        true,
		ServiceName:    "markercast",
		BatchTimeout:   time.Second,
		MetricInterval: time.Hour,
	}
}

func restoreGlobalMeter(t *testing.T) {
	t.Cleanup(func() { otel.SetMeterProvider(noop.NewMeterProvider()) })
}

func TestNew_Disabled(t *testing.T) {
	p, err := New(config.OTelConfig{}, nil)
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.Nil(t, p.MeterProvider())
	assert.Equal(t, noop.Meter{}, p.Meter("x"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutSinks(t *testing.T) {
	_, err := New(enabledConfig(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log writer or endpoint")
}

func TestNew_EnabledWithWriter(t *testing.T) {
	restoreGlobalMeter(t)
	buf := &syncBuffer{}
	p, err := New(enabledConfig(), buf)
	require.NoError(t, err)

	assert.True(t, p.Enabled())
	assert.NotNil(t, p.LoggerProvider())
	require.NotNil(t, p.MeterProvider())
	assert.Same(t, p.MeterProvider(), otel.GetMeterProvider())
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestGlobalMeter_ExportsToSink(t *testing.T) {
	restoreGlobalMeter(t)
	buf := &syncBuffer{}
	p, err := New(enabledConfig(), buf)
	require.NoError(t, err)

	counter, err := otel.Meter("markercast/test").Int64Counter("texture.loads")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	require.NoError(t, p.Flush(context.Background()))
	assert.Contains(t, buf.String(), "texture.loads")
	assert.NoError(t, p.Shutdown(context.Background()))
}
