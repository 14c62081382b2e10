package netengine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetIdealConcurrencySlowStart(t *testing.T) {
	cc := NewCongestionController(2, 16)
	assert.Equal(t, 2, cc.GetIdealConcurrency("example.com"))
}

func TestGetIdealConcurrencyIncreasesOnSuccess(t *testing.T) {
	cc := NewCongestionController(2, 16)
	cc.RecordOutcome("example.com", 10*time.Millisecond, nil)

	for i := 0; i < 5; i++ {
		cc.GetIdealConcurrency("example.com")
		cc.RecordOutcome("example.com", 10*time.Millisecond, nil)
	}

	got := cc.GetIdealConcurrency("example.com")
	assert.Greater(t, got, 2)
}

func TestGetIdealConcurrencyHalvesOnError(t *testing.T) {
	cc := NewCongestionController(2, 16)
	cc.RecordOutcome("example.com", 10*time.Millisecond, nil)
	for i := 0; i < 6; i++ {
		cc.GetIdealConcurrency("example.com")
		cc.RecordOutcome("example.com", 10*time.Millisecond, nil)
	}
	before := cc.GetIdealConcurrency("example.com")

	cc.RecordOutcome("example.com", 10*time.Millisecond, errors.New("boom"))
	after := cc.GetIdealConcurrency("example.com")

	assert.LessOrEqual(t, after, before/2+1)
}

func TestGetHostStatsUnknownHost(t *testing.T) {
	cc := NewCongestionController(2, 16)
	assert.Nil(t, cc.GetHostStats("nowhere.example.com"))
}

func TestSeedHostClampsToBounds(t *testing.T) {
	cc := NewCongestionController(2, 16)

	cc.SeedHost("fast.example.com", 9)
	assert.Equal(t, 9, cc.GetIdealConcurrency("fast.example.com"))

	cc.SeedHost("over.example.com", 99)
	assert.Equal(t, 16, cc.GetIdealConcurrency("over.example.com"))

	cc.SeedHost("under.example.com", 0)
	assert.Equal(t, 2, cc.GetIdealConcurrency("under.example.com"))
}
