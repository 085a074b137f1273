package signal

import (
	"context"
	"strconv"
	"time"

	"github.com/veritahealth/onboard/internal/logging"
)

// FetchStep returns the authoritative current step from the progress API.
type FetchStep func(ctx context.Context) (int, error)

// Poller is a bounded-retry event source: it fetches the authoritative
// step on a fixed interval while the client believes it is on watchStep,
// and emits exactly one CompletionSignal once a transition is observed.
// It replaces ad hoc uncoordinated polling; the poller itself never
// mutates state, it only feeds the deduplicating coordinator.
type Poller struct {
	source      Source
	watchStep   int
	interval    time.Duration
	maxAttempts int
	fetch       FetchStep
	sink        Sink
	log         *logging.Logger
}

// NewPoller creates a poller watching for a transition away from watchStep.
// source labels the emitted signal: SourceWebhook for the booking step,
// where polling observes the relayed webhook's effect, SourcePoll otherwise.
func NewPoller(source Source, watchStep int, interval time.Duration, maxAttempts int, fetch FetchStep, sink Sink, log *logging.Logger) *Poller {
	return &Poller{
		source:      source,
		watchStep:   watchStep,
		interval:    interval,
		maxAttempts: maxAttempts,
		fetch:       fetch,
		sink:        sink,
		log:         log.WithComponent("poller").With("watch_step", watchStep),
	}
}

// Run polls until a transition is observed, the attempt budget is spent,
// or ctx is cancelled. It blocks; callers run it in a goroutine and cancel
// ctx when another signal path resolves the step first.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		step, err := p.fetch(ctx)
		if err != nil {
			// Transient fetch failures spend an attempt; the next tick retries.
			p.log.Debug("progress fetch failed", "attempt", attempt, "error", err)
			continue
		}

		if step <= p.watchStep {
			continue
		}

		p.log.Info("step transition observed", "observed_step", step, "attempt", attempt)
		sig := New(p.source, step, map[string]string{"attempt": strconv.Itoa(attempt)})
		if err := p.sink(ctx, sig); err != nil {
			p.log.Warn("sink rejected poll signal", "error", err)
		}
		return
	}

	p.log.Info("poll budget exhausted without transition", "attempts", p.maxAttempts)
}
