package persist

import (
	"context"

	apperrors "github.com/veritahealth/onboard/internal/errors"
	"github.com/veritahealth/onboard/internal/event"
	"github.com/veritahealth/onboard/internal/logging"
)

// Tiered composes persistence tiers in priority order. Saves go to the
// highest tier that accepts them and mirror to the next tier on failure so
// a same-session reload can recover; loads return the first hit walking
// down the priority order.
type Tiered struct {
	tiers []Port
	log   *logging.Logger
	bus   *event.Bus
}

// SaveResult reports where a save landed. Durable is true only when the
// highest-priority (remote) tier accepted the write.
type SaveResult struct {
	Tier    string
	Durable bool
}

// NewTiered builds a Tiered port from the given tiers, probing each for
// availability. Unavailable tiers are skipped for the lifetime of the
// engine; the probe runs once at startup. At least one tier must remain.
func NewTiered(ctx context.Context, log *logging.Logger, bus *event.Bus, tiers ...Port) (*Tiered, error) {
	active := make([]Port, 0, len(tiers))
	for _, tier := range tiers {
		if tier.Available(ctx) {
			active = append(active, tier)
			continue
		}
		log.Warn("persistence tier unavailable, skipping", "tier", tier.Name())
	}
	if len(active) == 0 {
		return nil, apperrors.ErrStorageUnavailable
	}

	return &Tiered{
		tiers: active,
		log:   log.WithComponent("persist"),
		bus:   bus,
	}, nil
}

// Tiers returns the names of the active tiers in priority order.
func (t *Tiered) Tiers() []string {
	names := make([]string, len(t.tiers))
	for i, tier := range t.tiers {
		names[i] = tier.Name()
	}
	return names
}

// Save writes through the tiers in priority order. A tier failure degrades
// silently to the next tier; the caller only sees an error when every tier
// rejected the write.
func (t *Tiered) Save(ctx context.Context, key string, data []byte) (SaveResult, error) {
	for i, tier := range t.tiers {
		err := tier.Save(ctx, key, data)
		if err == nil {
			return SaveResult{
				Tier:    tier.Name(),
				Durable: i == 0 && tier.Name() == "remote",
			}, nil
		}

		t.log.Warn("persistence tier save failed", "tier", tier.Name(), "error", err)
		if i+1 < len(t.tiers) && t.bus != nil {
			t.bus.Publish(event.NewStorageDegradedEvent(tier.Name(), t.tiers[i+1].Name()))
		}
	}
	return SaveResult{}, apperrors.ErrStorageUnavailable
}

// Load returns the first hit walking the tiers in priority order: durable
// remote data wins over the local cache, which wins over session memory.
func (t *Tiered) Load(ctx context.Context, key string) ([]byte, error) {
	for _, tier := range t.tiers {
		data, err := tier.Load(ctx, key)
		if err == nil {
			return data, nil
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			t.log.Warn("persistence tier load failed", "tier", tier.Name(), "error", err)
		}
	}
	return nil, apperrors.ErrNotFound
}

// Delete removes the key from every tier that holds it.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	var lastErr error
	for _, tier := range t.tiers {
		if err := tier.Delete(ctx, key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
