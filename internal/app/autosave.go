package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"quiz-attempt-engine/internal/domain"
)

// saver writes snapshots for one attempt in the background. Only the newest pending
// snapshot is kept, and a failed write never reaches the attempt's in-memory state.
type saver struct {
	store   SnapshotStore
	logger  *slog.Logger
	retries int
	backoff time.Duration

	mu         sync.Mutex
	pending    *domain.AttemptSnapshot
	pendingSeq uint64
	savedSeq   uint64

	wake      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSaver(store SnapshotStore, logger *slog.Logger, retries int, backoff time.Duration) *saver {
	if retries < 1 {
		retries = 1
	}
	s := &saver{
		store:   store,
		logger:  logger,
		retries: retries,
		backoff: backoff,
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

// request queues snap unless something newer is already pending or saved.
func (s *saver) request(seq uint64, snap domain.AttemptSnapshot) {
	s.mu.Lock()
	if seq <= s.savedSeq || (s.pending != nil && seq <= s.pendingSeq) {
		s.mu.Unlock()
		return
	}
	s.pending = &snap
	s.pendingSeq = seq
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *saver) loop() {
	defer close(s.done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-s.wake:
			if err := s.flush(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("snapshot autosave failed", "error", err)
			}
		case <-s.quit:
			return
		}
	}
}

// flush writes the pending snapshot. On failure it goes back to pending unless
// a newer one arrived meanwhile.
func (s *saver) flush(ctx context.Context) error {
	s.mu.Lock()
	snap, seq := s.pending, s.pendingSeq
	s.pending = nil
	s.mu.Unlock()
	if snap == nil {
		return nil
	}

	err := retry(ctx, s.retries, s.backoff, func(ctx context.Context) error {
		return s.store.Save(ctx, *snap)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.pending == nil && seq > s.savedSeq {
			s.pending = snap
			s.pendingSeq = seq
		}
		return err
	}
	if seq > s.savedSeq {
		s.savedSeq = seq
	}
	return nil
}

// close stops the background loop and writes whatever is still pending.
func (s *saver) close(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
	return s.flush(ctx)
}

// retry calls fn up to attempts times with a linear backoff between calls.
func retry(ctx context.Context, attempts int, backoff time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(i+1)):
		}
	}
	return err
}
