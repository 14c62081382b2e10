package launch

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

const giB = 1024 * 1024 * 1024

// MemoryLimits holds the computed -Xms/-Xmx values in GiB.
type MemoryLimits struct {
	MinGiB int
	MaxGiB int
}

// computeMemoryLimits implements §4.5's memory policy: fail if installed
// memory is below requiredGiB, else clamp max up to requiredGiB and min
// down to the (possibly raised) max, matching calcMemoryLimits in the
// original's launcherMinecraft.hpp.
func computeMemoryLimits(minGiB, maxGiB, requiredGiB int, totalBytes uint64) (MemoryLimits, error) {
	if minGiB < 0 || maxGiB < 0 || requiredGiB < 0 {
		return MemoryLimits{}, fmt.Errorf("%w: memory limits cannot be negative", ErrInvalidArgument)
	}

	required := uint64(requiredGiB) * giB
	if totalBytes < required {
		return MemoryLimits{}, fmt.Errorf("%w: total memory %d GiB, need %d GiB", ErrInsufficientMemory, totalBytes/giB, requiredGiB)
	}

	effectiveMax := maxGiB
	if requiredGiB > effectiveMax {
		effectiveMax = requiredGiB
	}
	effectiveMin := minGiB
	if effectiveMin > effectiveMax {
		effectiveMin = effectiveMax
	}

	return MemoryLimits{MinGiB: effectiveMin, MaxGiB: effectiveMax}, nil
}

// totalSystemMemoryBytes reports installed system memory via gopsutil,
// the same dependency the teacher's filesystem.Allocator and
// analytics.Stats already use for resource probing.
func totalSystemMemoryBytes(ctx context.Context) (uint64, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return v.Total, nil
}

// jvmFlags renders a MemoryLimits pair as -Xms/-Xmx flags.
func (m MemoryLimits) jvmFlags() []string {
	return []string{
		fmt.Sprintf("-Xms%dG", m.MinGiB),
		fmt.Sprintf("-Xmx%dG", m.MaxGiB),
	}
}
