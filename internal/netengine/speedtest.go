package netengine

import (
	"context"
	"fmt"
	"time"

	"github.com/showwin/speedtest-go/speedtest"
)

// SpeedTestResult summarizes one bandwidth probe against the nearest
// public speedtest server, adapted from project-tachyon's
// internal/network.RunSpeedTest. The Host Probe (C6) records the ping
// figure and reports it through InitialPingMs.
type SpeedTestResult struct {
	DownloadMbps float64
	UploadMbps   float64
	PingMs       int64
	JitterMs     int64
	ServerName   string
	ISP          string
	MeasuredAt   time.Time
}

// RunSpeedTest finds the nearest speedtest server and measures ping,
// download, and upload throughput against it.
func RunSpeedTest(ctx context.Context) (*SpeedTestResult, error) {
	user, err := speedtest.FetchUserInfo()
	if err != nil {
		return nil, fmt.Errorf("%w: no internet connection", ErrTransport)
	}

	servers, err := speedtest.FetchServers()
	if err != nil {
		return nil, fmt.Errorf("%w: fetch speedtest servers: %v", ErrTransport, err)
	}

	targets, err := servers.FindServer([]int{})
	if err != nil || len(targets) == 0 {
		return nil, fmt.Errorf("%w: no speedtest servers available", ErrTransport)
	}
	server := targets[0]

	if err := server.PingTestContext(ctx, nil); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: speed test ping", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: ping test failed: %v", ErrTransport, err)
	}

	if err := server.DownloadTestContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: download test failed: %v", ErrTransport, err)
	}
	if err := server.UploadTestContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: upload test failed: %v", ErrTransport, err)
	}

	return &SpeedTestResult{
		DownloadMbps: float64(server.DLSpeed) / 1000 / 1000 * 8,
		UploadMbps:   float64(server.ULSpeed) / 1000 / 1000 * 8,
		PingMs:       int64(server.Latency.Milliseconds()),
		JitterMs:     int64(server.Jitter.Milliseconds()),
		ServerName:   server.Name,
		ISP:          user.Isp,
		MeasuredAt:   time.Now(),
	}, nil
}

// SuggestedConcurrency maps a measured ping to a reasonable starting
// per-host worker count for the congestion controller: fast, low-latency
// links start closer to maxWorkers instead of always slow-starting from
// minWorkers.
func (r *SpeedTestResult) SuggestedConcurrency(minWorkers, maxWorkers int) int {
	switch {
	case r.PingMs <= 30:
		return maxWorkers
	case r.PingMs <= 80:
		return (minWorkers + maxWorkers) / 2
	default:
		return minWorkers
	}
}
