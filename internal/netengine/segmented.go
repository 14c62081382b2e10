package netengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"nekolauncher/internal/pool"
)

// Approach selects how a segmented download is carved into pieces (spec
// §4.3 "Compute a segment plan by approach").
type Approach int

const (
	// Thread splits into a fixed task count (Param, default 100).
	Thread Approach = iota
	// Size splits into equal byte-sized segments (Param bytes, default 5 MiB).
	Size
	// Quantity splits into a fixed segment count (Param, default 100).
	Quantity
	// Auto picks Quantity for files <= 50 MiB, else 5 MiB segments.
	Auto
)

const (
	defaultThreadCount  = 100
	defaultSegmentBytes = 5 * 1024 * 1024
	defaultQuantity     = 100
	autoThreshold       = 50 * 1024 * 1024
)

// MultiDownloadConfig configures a segmented download (spec §6
// "multiThreadedDownload(MultiDownloadConfig)").
type MultiDownloadConfig struct {
	URL       string
	Dest      string
	Approach  Approach
	Param     int64
	Headers   map[string]string
	UserAgent string

	MaxRetries int
	RetryDelay time.Duration

	Bandwidth  *BandwidthManager
	Congestion *CongestionController
	Host       string
}

type segmentPlan struct {
	index int
	start int64
	end   int64 // inclusive
	path  string
}

func planSegments(size int64, approach Approach, param int64, tempDir string) []segmentPlan {
	var segBytes int64
	var count int

	switch approach {
	case Thread:
		n := param
		if n <= 0 {
			n = defaultThreadCount
		}
		count = int(n)
		segBytes = ceilDiv(size, int64(count))
	case Size:
		s := param
		if s <= 0 {
			s = defaultSegmentBytes
		}
		segBytes = s
		count = int(ceilDiv(size, segBytes))
	case Quantity:
		n := param
		if n <= 0 {
			n = defaultQuantity
		}
		count = int(n)
		segBytes = ceilDiv(size, int64(count))
	default: // Auto
		if size <= autoThreshold {
			count = defaultQuantity
			segBytes = ceilDiv(size, int64(count))
		} else {
			segBytes = defaultSegmentBytes
			count = int(ceilDiv(size, segBytes))
		}
	}

	if segBytes <= 0 {
		segBytes = 1
	}

	plans := make([]segmentPlan, 0, count)
	for i := 0; int64(i)*segBytes < size; i++ {
		start := int64(i) * segBytes
		end := start + segBytes - 1
		if end >= size {
			end = size - 1
		}
		plans = append(plans, segmentPlan{
			index: i,
			start: start,
			end:   end,
			path:  filepath.Join(tempDir, fmt.Sprintf("segment-%05d.part", i)),
		})
		if end == size-1 {
			break
		}
	}
	return plans
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// MultiThreadedDownload fetches cfg.URL in parallel segments submitted to
// p, reassembling them into cfg.Dest in ascending byte order. Falls back
// to a single-threaded download if Content-Length cannot be determined
// (spec §4.3 step 1).
func MultiThreadedDownload(ctx context.Context, p *pool.Pool, cfg MultiDownloadConfig) error {
	probe, err := Probe(ctx, cfg.URL, cfg.Headers, cfg.UserAgent)
	if err != nil || probe.Size <= 0 {
		return singleThreadedDownload(ctx, cfg)
	}

	tempDir, err := os.MkdirTemp("", "nekolauncher-segments-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	plans := planSegments(probe.Size, cfg.Approach, cfg.Param, tempDir)

	failed, err := runSegmentRound(ctx, p, cfg, plans)
	if err != nil {
		return err
	}

	if len(failed) > 0 {
		failed, err = runSegmentRound(ctx, p, cfg, failed)
		if err != nil {
			return err
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%w: %d segment(s) failed after retry", ErrTransport, len(failed))
	}

	return concatenate(cfg.Dest, plans)
}

// runSegmentRound submits every plan to the pool and returns the subset
// that failed even after their in-task retry wrapper was exhausted.
func runSegmentRound(ctx context.Context, p *pool.Pool, cfg MultiDownloadConfig, plans []segmentPlan) ([]segmentPlan, error) {
	type outcome struct {
		plan segmentPlan
		err  error
	}
	results := make(chan outcome, len(plans))

	for _, plan := range plans {
		plan := plan
		_, err := p.SubmitWithPriority(pool.Normal, func() error {
			start := time.Now()
			segErr := downloadSegment(ctx, cfg, plan)
			if cfg.Congestion != nil {
				cfg.Congestion.RecordOutcome(cfg.Host, time.Since(start), segErr)
			}
			results <- outcome{plan: plan, err: segErr}
			return segErr
		})
		if err != nil {
			results <- outcome{plan: plan, err: err}
		}
	}

	var failed []segmentPlan
	for i := 0; i < len(plans); i++ {
		o := <-results
		if o.err != nil {
			failed = append(failed, o.plan)
		}
	}
	return failed, nil
}

func downloadSegment(ctx context.Context, cfg MultiDownloadConfig, plan segmentPlan) error {
	taskID := plan.path
	var throttle func(context.Context, int) error
	if cfg.Bandwidth != nil {
		throttle = cfg.Bandwidth.Wait
		cfg.Bandwidth.SetTaskPriority(taskID, pool.Normal)
	}

	_, err := ExecuteWithRetry(ctx, RequestConfig{
		Method:     "GET",
		URL:        cfg.URL,
		Headers:    cfg.Headers,
		UserAgent:  cfg.UserAgent,
		UseRange:   true,
		RangeStart: plan.start,
		RangeEnd:   plan.end,
		DestPath:   plan.path,
		Throttle:   throttle,
	}, RetryConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		SuccessCodes: []int{200, 206},
	})
	return err
}

func singleThreadedDownload(ctx context.Context, cfg MultiDownloadConfig) error {
	var throttle func(context.Context, int) error
	if cfg.Bandwidth != nil {
		throttle = cfg.Bandwidth.Wait
	}

	_, err := ExecuteWithRetry(ctx, RequestConfig{
		Method:    "GET",
		URL:       cfg.URL,
		Headers:   cfg.Headers,
		UserAgent: cfg.UserAgent,
		DestPath:  cfg.Dest,
		Throttle:  throttle,
	}, RetryConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		SuccessCodes: []int{200},
	})
	return err
}

// concatenate joins every segment's temp file into dest in ascending
// index order, then removes the temp files (spec: "no temporary segment
// file remains").
func concatenate(dest string, plans []segmentPlan) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	for _, plan := range plans {
		if err := appendSegment(out, plan.path); err != nil {
			return err
		}
	}
	return nil
}

func appendSegment(out *os.File, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	defer os.Remove(path)

	_, err = io.Copy(out, in)
	return err
}
