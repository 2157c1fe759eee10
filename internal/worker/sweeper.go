package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"seatwarden/internal/metrics"
	"seatwarden/internal/models"

	"github.com/rs/zerolog"
)

// ExpiredHoldSweeper is the part of the hold service the sweeper drives.
type ExpiredHoldSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// SweeperStats is a snapshot of sweeper progress.
type SweeperStats struct {
	Running      bool      `json:"running"`
	Runs         int64     `json:"runs"`
	Failures     int64     `json:"failures"`
	TotalExpired int64     `json:"total_expired"`
	LastRun      time.Time `json:"last_run"`
	LastExpired  int       `json:"last_expired"`
	LastError    string    `json:"last_error,omitempty"`
}

// ExpirySweeper periodically moves lapsed ACTIVE holds to EXPIRED. Availability
// never depends on it running; it only keeps stored statuses tidy and cascades
// DRAFT booking cancellation.
type ExpirySweeper struct {
	holds    ExpiredHoldSweeper
	interval time.Duration
	logger   *zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
	stats   SweeperStats
}

func NewExpirySweeper(holds ExpiredHoldSweeper, interval time.Duration, logger *zerolog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = models.DefaultSweepInterval
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &ExpirySweeper{
		holds:    holds,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sweep loop. It runs one pass immediately.
func (w *ExpirySweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("expiry sweeper already running")
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().Dur("interval", w.interval).Msg("expiry sweeper started")
	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (w *ExpirySweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info().Msg("expiry sweeper stopped")
}

func (w *ExpirySweeper) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep pass and returns the number of holds expired.
func (w *ExpirySweeper) RunOnce(ctx context.Context) int {
	n, err := w.holds.SweepExpired(ctx)
	metrics.IncSweeperRun()

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastRun = time.Now().UTC()
	w.stats.LastExpired = n
	w.stats.TotalExpired += int64(n)
	w.stats.LastError = ""
	if err != nil {
		w.stats.Failures++
		w.stats.LastError = err.Error()
	}
	w.mu.Unlock()

	switch {
	case err != nil && ctx.Err() == nil:
		w.logger.Error().Err(err).Int("expired", n).Msg("expiry sweep failed")
	case n > 0:
		w.logger.Info().Int("expired", n).Msg("expired holds swept")
	}
	return n
}

func (w *ExpirySweeper) Stats() SweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Running = w.running
	return s
}
