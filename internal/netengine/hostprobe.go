package netengine

import (
	"context"
	"regexp"
	"sync"
	"time"
)

// proxyPattern validates a user-specified proxy against the documented
// shape (spec §6 "Wire protocol"): `http|https|socks4|socks5://host:port`.
var proxyPattern = regexp.MustCompile(`^(?:http|https|socks4|socks5)://[^:/\s]+:\d+$`)

// ValidateProxy reports whether proxy matches the accepted proxy-URL
// shape. A malformed value is simply ignored by the caller, per spec.
func ValidateProxy(proxy string) bool {
	if proxy == "" {
		return true
	}
	return proxyPattern.MatchString(proxy)
}

const (
	// failureStreakDemote is how many consecutive failures demote a host
	// out of the healthy set.
	failureStreakDemote = 3
	// healthStaleAfter bounds how long a health verdict is trusted before
	// the next user of that host triggers a fresh lazy re-probe.
	healthStaleAfter = 30 * time.Second
)

// HostHealth tracks per-host probe outcomes for the Host Probe (spec C6),
// supplementing the base "probe once at startup" behaviour with the
// original implementation's failure-streak demotion so a host that starts
// failing mid-session is dropped without a full re-bootstrap.
type HostHealth struct {
	mu       sync.RWMutex
	healthy  []string // in probe order
	failures map[string]int
	lastSeen map[string]time.Time
}

func newHostHealth() *HostHealth {
	return &HostHealth{
		failures: make(map[string]int),
		lastSeen: make(map[string]time.Time),
	}
}

// HostProbe implements C6: bootstraps the healthy-host set once, then
// tracks health as the rest of the core reports outcomes.
type HostProbe struct {
	health       *HostHealth
	userAgent    string
	maxRetries   int
	retryDelay   time.Duration
	ProbeNetwork bool // if true, Bootstrap also runs a one-shot speed test

	pingMu sync.RWMutex
	pingMs int64 // 0 until a speed test has completed successfully
}

// NewHostProbe creates a prober. maxRetries/retryDelay govern the short
// retry used for each bootstrap probe.
func NewHostProbe(userAgent string, maxRetries int, retryDelay time.Duration) *HostProbe {
	return &HostProbe{
		health:     newHostHealth(),
		userAgent:  userAgent,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Bootstrap issues a short-retry GET against probePath on each host in
// order; hosts returning 200 join the healthy set in that same order
// (spec §4.3 "Host probe"). If ProbeNetwork is set, it also runs a
// one-shot speed test in the background to seed InitialPingMs; a failed
// or slow speed test never blocks or fails the host bootstrap itself.
func (hp *HostProbe) Bootstrap(ctx context.Context, hosts []string, probePath string) {
	if hp.ProbeNetwork {
		go hp.seedPingFromSpeedTest(ctx)
	}

	hp.health.mu.Lock()
	defer hp.health.mu.Unlock()

	for _, host := range hosts {
		result, err := ExecuteWithRetry(ctx, RequestConfig{
			Method:    "GET",
			URL:       host + probePath,
			UserAgent: hp.userAgent,
		}, RetryConfig{
			MaxRetries:   hp.maxRetries,
			RetryDelay:   hp.retryDelay,
			SuccessCodes: []int{200},
		})
		if err == nil && result.StatusCode == 200 {
			hp.health.healthy = append(hp.health.healthy, host)
			hp.health.lastSeen[host] = time.Now()
		}
	}
}

// seedPingFromSpeedTest runs RunSpeedTest once and records its ping
// figure, if it succeeds, for InitialPingMs to later report.
func (hp *HostProbe) seedPingFromSpeedTest(ctx context.Context) {
	result, err := RunSpeedTest(ctx)
	if err != nil {
		return
	}
	hp.pingMu.Lock()
	hp.pingMs = result.PingMs
	hp.pingMu.Unlock()
}

// InitialPingMs returns the ping figure from the background speed test
// started by Bootstrap, or 0 if none has completed yet (either disabled
// via ProbeNetwork or still in flight). A caller may turn a non-zero value
// into a starting concurrency for CongestionController.SeedHost; nothing
// in this package does so itself.
func (hp *HostProbe) InitialPingMs() int64 {
	hp.pingMu.RLock()
	defer hp.pingMu.RUnlock()
	return hp.pingMs
}

// HealthyHosts returns the current healthy set in probe order.
func (hp *HostProbe) HealthyHosts() []string {
	hp.health.mu.RLock()
	defer hp.health.mu.RUnlock()
	out := make([]string, len(hp.health.healthy))
	copy(out, hp.health.healthy)
	return out
}

// MarkFailure records a failed request against host; after
// failureStreakDemote consecutive failures the host is removed from the
// healthy set.
func (hp *HostProbe) MarkFailure(host string) {
	hp.health.mu.Lock()
	defer hp.health.mu.Unlock()

	hp.health.failures[host]++
	if hp.health.failures[host] >= failureStreakDemote {
		hp.health.healthy = removeHost(hp.health.healthy, host)
	}
}

// MarkSuccess resets host's failure streak and refreshes its last-seen
// timestamp, re-admitting it to the healthy set if it had been demoted.
func (hp *HostProbe) MarkSuccess(host string) {
	hp.health.mu.Lock()
	defer hp.health.mu.Unlock()

	hp.health.failures[host] = 0
	hp.health.lastSeen[host] = time.Now()
	if !containsHost(hp.health.healthy, host) {
		hp.health.healthy = append(hp.health.healthy, host)
	}
}

// NeedsReprobe reports whether host's last health verdict is stale enough
// that the caller should issue a fresh lazy probe before relying on it.
func (hp *HostProbe) NeedsReprobe(host string) bool {
	hp.health.mu.RLock()
	defer hp.health.mu.RUnlock()

	seen, ok := hp.health.lastSeen[host]
	if !ok {
		return true
	}
	return time.Since(seen) > healthStaleAfter
}

func removeHost(hosts []string, target string) []string {
	out := hosts[:0]
	for _, h := range hosts {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

func containsHost(hosts []string, target string) bool {
	for _, h := range hosts {
		if h == target {
			return true
		}
	}
	return false
}
