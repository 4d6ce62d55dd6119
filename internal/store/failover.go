package store

import (
	"context"
	"sync/atomic"
	"time"

	"slotcal/internal/domain"
	"slotcal/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStore prefers the primary store and falls back to the secondary
// when the primary errors, probing the primary again after a minute. Reads
// served from the fallback may miss documents written before the outage;
// the coordinator's conflict check degrades conservatively either way once
// the primary recovers and the snapshot refreshes.
type FailoverStore struct {
	primary   domain.RealtimeStore
	fallback  domain.RealtimeStore
	logger    zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverStore(primary, fallback domain.RealtimeStore, logger *zerolog.Logger) *FailoverStore {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "store-failover").Logger()
	}
	return &FailoverStore{primary: primary, fallback: fallback, logger: base}
}

func (s *FailoverStore) markDown(err error) {
	s.logger.Error().Err(err).Msg("primary store failed, falling back to memory")
	s.isDown.Store(true)
	s.lastCheck.Store(time.Now().UnixNano())
}

func (s *FailoverStore) shouldProbe() bool {
	return time.Since(time.Unix(0, s.lastCheck.Load())) > time.Minute
}

func (s *FailoverStore) PutEvent(ctx context.Context, doc *models.Document) error {
	if !s.isDown.Load() || s.shouldProbe() {
		err := s.primary.PutEvent(ctx, doc)
		if err == nil {
			s.isDown.Store(false)
			return nil
		}
		s.markDown(err)
	}
	return s.fallback.PutEvent(ctx, doc)
}

func (s *FailoverStore) GetEvent(ctx context.Context, id string) (*models.Document, error) {
	if !s.isDown.Load() || s.shouldProbe() {
		doc, err := s.primary.GetEvent(ctx, id)
		if err == nil {
			s.isDown.Store(false)
			return doc, nil
		}
		s.markDown(err)
	}
	return s.fallback.GetEvent(ctx, id)
}

func (s *FailoverStore) DeleteEvent(ctx context.Context, id string) error {
	if !s.isDown.Load() || s.shouldProbe() {
		err := s.primary.DeleteEvent(ctx, id)
		if err == nil {
			s.isDown.Store(false)
			return nil
		}
		s.markDown(err)
	}
	return s.fallback.DeleteEvent(ctx, id)
}

func (s *FailoverStore) ListEvents(ctx context.Context) ([]*models.Document, error) {
	if !s.isDown.Load() || s.shouldProbe() {
		docs, err := s.primary.ListEvents(ctx)
		if err == nil {
			s.isDown.Store(false)
			return docs, nil
		}
		s.markDown(err)
	}
	return s.fallback.ListEvents(ctx)
}

// Subscribe always goes to the primary; the fallback's feed only covers
// writes the fallback itself served, which would hide primary traffic.
func (s *FailoverStore) Subscribe(ctx context.Context) (<-chan struct{}, func(), error) {
	ch, stop, err := s.primary.Subscribe(ctx)
	if err != nil {
		s.markDown(err)
		return s.fallback.Subscribe(ctx)
	}
	return ch, stop, nil
}
