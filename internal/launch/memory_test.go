package launch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMemoryLimitsWithinBounds(t *testing.T) {
	limits, err := computeMemoryLimits(2, 4, 2, 16*giB)
	require.NoError(t, err)
	assert.Equal(t, 2, limits.MinGiB)
	assert.Equal(t, 4, limits.MaxGiB)
}

func TestComputeMemoryLimitsRaisesMaxToRequired(t *testing.T) {
	limits, err := computeMemoryLimits(2, 4, 8, 16*giB)
	require.NoError(t, err)
	assert.Equal(t, 8, limits.MaxGiB, "effectiveMax = max(maxGiB, requiredGiB)")
	assert.Equal(t, 2, limits.MinGiB)
}

func TestComputeMemoryLimitsClampsMinToMax(t *testing.T) {
	limits, err := computeMemoryLimits(10, 4, 2, 16*giB)
	require.NoError(t, err)
	assert.Equal(t, 4, limits.MaxGiB)
	assert.Equal(t, 4, limits.MinGiB, "effectiveMin = min(minGiB, effectiveMax)")
}

func TestComputeMemoryLimitsFailsWhenTotalBelowRequired(t *testing.T) {
	_, err := computeMemoryLimits(2, 4, 8, 4*giB)
	assert.ErrorIs(t, err, ErrInsufficientMemory)
}

func TestComputeMemoryLimitsRejectsNegative(t *testing.T) {
	_, err := computeMemoryLimits(-1, 4, 2, 16*giB)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMemoryLimitsJVMFlags(t *testing.T) {
	limits := MemoryLimits{MinGiB: 2, MaxGiB: 4}
	assert.Equal(t, []string{"-Xms2G", "-Xmx4G"}, limits.jvmFlags())
}
