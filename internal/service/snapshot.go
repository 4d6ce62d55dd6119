package service

import (
	"context"
	"sort"
	"sync"

	"slotcal/internal/domain"
	"slotcal/internal/models"

	"github.com/rs/zerolog"
)

// Snapshot maintains an in-process view of all CREATED bookings, fed by the
// store's push subscription. Each notification rebuilds the view wholesale:
// decode-or-reject per record, CREATED filter, sort by start date. Simplicity
// over efficiency; the data set is seven slots worth of bookings.
type Snapshot struct {
	store  domain.RealtimeStore
	logger zerolog.Logger

	mu       sync.RWMutex
	bookings []*models.Booking

	stop func()
	done chan struct{}
}

func NewSnapshot(store domain.RealtimeStore, logger *zerolog.Logger) *Snapshot {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "snapshot").Logger()
	}
	return &Snapshot{store: store, logger: base}
}

// Start loads the initial view and subscribes to the push feed. It must be
// paired with Stop to release the subscription.
func (s *Snapshot) Start(ctx context.Context) error {
	if err := s.refresh(ctx); err != nil {
		return err
	}

	notifications, stop, err := s.store.Subscribe(ctx)
	if err != nil {
		return err
	}
	s.stop = stop
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-notifications:
				if !ok {
					return
				}
				if err := s.refresh(ctx); err != nil {
					s.logger.Error().Err(err).Msg("snapshot refresh failed")
				}
			}
		}
	}()

	return nil
}

// Stop unsubscribes from the push feed and waits for the update loop to
// drain.
func (s *Snapshot) Stop() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	if s.done != nil {
		<-s.done
		s.done = nil
	}
}

// Bookings returns a copy of the current CREATED bookings, sorted by start
// date ascending.
func (s *Snapshot) Bookings() []*models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Booking, len(s.bookings))
	copy(out, s.bookings)
	return out
}

// Refresh rebuilds the view from the store on demand.
func (s *Snapshot) Refresh(ctx context.Context) error {
	return s.refresh(ctx)
}

func (s *Snapshot) refresh(ctx context.Context) error {
	docs, err := s.store.ListEvents(ctx)
	if err != nil {
		return err
	}

	bookings := make([]*models.Booking, 0, len(docs))
	for _, doc := range docs {
		b, err := models.DecodeDocument(doc)
		if err != nil {
			s.logger.Warn().Err(err).Msg("discarding malformed record")
			continue
		}
		if b.Status != models.StatusCreated {
			continue
		}
		bookings = append(bookings, b)
	}

	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].Start.Before(bookings[j].Start)
	})

	s.mu.Lock()
	s.bookings = bookings
	s.mu.Unlock()
	return nil
}
