package bgm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFadeEnvelopeLinearMidpoint(t *testing.T) {
	f := &fadeEnvelope{startVol: 0, endVol: 1, duration: 100 * time.Millisecond, curve: curveLinear}
	assert.InDelta(t, 0.5, f.valueAt(50*time.Millisecond), 1e-9)
	assert.Equal(t, 1.0, f.valueAt(100*time.Millisecond))
}

func TestFadeEnvelopeEaseInOutQuadBounds(t *testing.T) {
	f := &fadeEnvelope{startVol: 0, endVol: 1, duration: 100 * time.Millisecond, curve: curveEaseInOutQuad}
	assert.InDelta(t, 0, f.valueAt(0), 1e-9)
	assert.InDelta(t, 0.5, f.valueAt(50*time.Millisecond), 1e-9)
	assert.Equal(t, 1.0, f.valueAt(200*time.Millisecond))
}

func TestFadeEnvelopeZeroDurationIsImmediate(t *testing.T) {
	f := &fadeEnvelope{startVol: 0.2, endVol: 0.8, duration: 0}
	assert.Equal(t, 0.8, f.valueAt(0))
	assert.True(t, f.done(0))
}

func TestEaseInOutQuadMonotonic(t *testing.T) {
	prev := -1.0
	for i := 0; i <= 10; i++ {
		v := easeInOutQuad(float64(i) / 10)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}
