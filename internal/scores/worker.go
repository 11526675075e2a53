package scores

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/obstacle-community/records/internal/config"
)

// Worker drives the score engine on two independent schedules: the edition
// and mappack sweep, and the global player/map ranking recomputation.
type Worker struct {
	engine  *Engine
	config  *config.ScoresConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool

	lastRanking time.Time
}

// NewWorker creates a score worker
func NewWorker(engine *Engine, cfg *config.ScoresConfig, logger *slog.Logger) *Worker {
	return &Worker{
		engine: engine,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background score loops
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("score worker started",
		"event_interval", w.config.EventInterval,
		"ranking_interval", w.config.RankingInterval)

	go w.run(ctx)
	return nil
}

// Stop stops the background score loops
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("score worker stopped")
	return nil
}

// run is the main worker loop
func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	eventTicker := time.NewTicker(w.config.EventInterval)
	defer eventTicker.Stop()
	rankingTicker := time.NewTicker(w.config.RankingInterval)
	defer rankingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-eventTicker.C:
			w.runEditionCycle(ctx)
		case <-rankingTicker.C:
			w.runRankingCycle(ctx)
		}
	}
}

// runEditionCycle runs one edition and mappack sweep
func (w *Worker) runEditionCycle(ctx context.Context) {
	w.logger.Info("starting edition score cycle")
	startTime := time.Now()

	w.engine.RunEditions(ctx)

	w.logger.Info("edition score cycle completed", "duration", time.Since(startTime))
}

// runRankingCycle recomputes the global rankings. Later cycles pass the
// previous run's start time so an idle interval skips the recompute
// entirely; when anything changed the scores are rebuilt from the whole
// record table.
func (w *Worker) runRankingCycle(ctx context.Context) {
	w.logger.Info("starting ranking cycle")
	startTime := time.Now()

	var from *time.Time
	if !w.lastRanking.IsZero() {
		t := w.lastRanking
		from = &t
	}
	if err := w.engine.RunRanking(ctx, from); err != nil {
		w.logger.Error("ranking cycle failed", "error", err)
		return
	}
	w.lastRanking = startTime

	w.logger.Info("ranking cycle completed", "duration", time.Since(startTime))
}

// IsRunning returns whether the worker is currently running
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single edition sweep and ranking pass (useful for manual
// triggers and startup warm-up)
func (w *Worker) RunOnce(ctx context.Context) {
	w.runEditionCycle(ctx)
	w.runRankingCycle(ctx)
}
