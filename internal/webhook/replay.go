package webhook

import (
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// ReplayGuard is a time-bounded deduplication cache keyed by a digest of
// (body, timestamp-header-value). It is owned by one pipeline instance and
// shared across its concurrent invocations; protection is per process only,
// so horizontally scaled deployments get best-effort, not global, replay
// protection.
//
// Because the digest includes the verbatim timestamp value, a resent body
// with a freshly forged timestamp bypasses the cache and is bounded only by
// the tolerance window. That is a documented property of the scheme, not a
// defect to compensate for here.
type ReplayGuard struct {
	mu   sync.Mutex
	seen map[string]int64 // digest -> last-seen epoch seconds

	retention     time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewReplayGuard creates a guard that retains entries for the given
// tolerance. clock is injectable for deterministic tests; nil means
// time.Now.
func NewReplayGuard(retention, sweepInterval time.Duration, clock func() time.Time, logger *slog.Logger) *ReplayGuard {
	if clock == nil {
		clock = time.Now
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayGuard{
		seen:          make(map[string]int64),
		retention:     retention,
		sweepInterval: sweepInterval,
		now:           clock,
		logger:        logger.With("component", "replay_guard"),
		stopCh:        make(chan struct{}),
	}
}

// CheckAndRecord atomically tests and records a digest. It returns false if
// an entry for the digest exists within the tolerance window (a replay), and
// true otherwise, in which case the entry is inserted or refreshed. Two
// simultaneous identical requests cannot both be accepted.
func (g *ReplayGuard) CheckAndRecord(digest string, nowSeconds, toleranceSeconds int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.seen[digest]; ok && nowSeconds-last <= toleranceSeconds {
		return false
	}
	g.seen[digest] = nowSeconds
	return true
}

// Size returns the current number of cached entries.
func (g *ReplayGuard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Start launches the periodic sweeper.
func (g *ReplayGuard) Start() {
	g.wg.Add(1)
	go g.sweepLoop()
}

// Stop cancels the sweeper and waits for it to exit.
func (g *ReplayGuard) Stop() {
	g.stopOnce.Do(func() { close(g.stopCh) })
	g.wg.Wait()
}

func (g *ReplayGuard) sweepLoop() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := g.Sweep()
			if removed > 0 {
				g.logger.Debug("replay cache swept", "removed", removed, "remaining", g.Size())
			}
		case <-g.stopCh:
			return
		}
	}
}

// Sweep removes entries older than the retention window and returns how many
// were removed. The lock is held for a single bounded scan of the map.
func (g *ReplayGuard) Sweep() int {
	cutoff := g.now().Unix() - int64(g.retention/time.Second)

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for digest, last := range g.seen {
		if last < cutoff {
			delete(g.seen, digest)
			removed++
		}
	}
	return removed
}

// ReplayDigest computes the cache key for a (body, timestamp) pair.
func ReplayDigest(body []byte, timestamp string) string {
	h := blake3.New()
	h.Write(body)
	h.Write([]byte{0})
	h.Write([]byte(timestamp))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}
