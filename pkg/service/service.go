// Package service drives a synchronization engine from producer activity.
//
// Producers push into timelines; each push marks the service as having
// received data. Consumers request a synchronization; the request is served
// once data has been received. The two flags form an update mask that a single
// worker goroutine drains, so engine calls are always serialized.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mrisync/pkg/synchronizer"
)

type updateMask uint8

const (
	objectReceived updateMask = 1 << iota
	syncRequested
)

// Options configures a service
type Options struct {
	// LegacyAutoSync runs a synchronization every TimeStep once data has been
	// received, instead of waiting for requests
	LegacyAutoSync bool

	// TimeStep is the legacy auto sync period
	TimeStep time.Duration

	// Logger receives diagnostics, slog.Default() when nil
	Logger *slog.Logger
}

// Observable is a timeline the service can watch
type Observable interface {
	OnPush(fn func(timestamp int64))
	OnClear(fn func())
}

// Service serializes access to one engine and schedules its synchronizations.
//
// Thread-safety: all methods are safe for concurrent use.
type Service struct {
	id     uuid.UUID
	opts   Options
	logger *slog.Logger

	engineMu sync.Mutex
	engine   *synchronizer.Engine

	maskMu  sync.Mutex
	cond    *sync.Cond
	mask    updateMask
	pending bool

	// received and requested count Updated and RequestSync calls, so that a
	// synchronization only clears the bits it actually served
	received  uint64
	requested uint64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedMu sync.Mutex
	started   bool
}

// New creates a service around an engine
func New(engine *synchronizer.Engine, opts Options) *Service {
	if opts.TimeStep <= 0 {
		opts.TimeStep = 33 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		id:     uuid.New(),
		opts:   opts,
		engine: engine,
	}
	s.logger = logger.With("component", "service", "session", s.id.String())
	s.cond = sync.NewCond(&s.maskMu)
	return s
}

// ID returns the session identifier of the service
func (s *Service) ID() uuid.UUID {
	return s.id
}

// Watch subscribes the service to a timeline: pushes mark data as received
// and clearing the timeline resets the engine.
func (s *Service) Watch(tl Observable) {
	tl.OnPush(func(int64) { s.Updated() })
	tl.OnClear(s.Reset)
}

// Updated marks that a producer pushed new data. A pending request is then
// handed to the worker.
func (s *Service) Updated() {
	s.maskMu.Lock()
	defer s.maskMu.Unlock()

	s.mask |= objectReceived
	s.received++
	if s.opts.LegacyAutoSync {
		return
	}
	if s.mask&syncRequested != 0 {
		s.pending = true
		s.cond.Signal()
	}
}

// RequestSync asks for a synchronization. It never blocks: the worker
// performs it as soon as data has been received.
func (s *Service) RequestSync() {
	s.maskMu.Lock()
	defer s.maskMu.Unlock()

	s.mask |= syncRequested
	s.requested++
	if s.mask&objectReceived != 0 {
		s.pending = true
		s.cond.Signal()
	}
}

// TrySync runs one synchronization in the calling goroutine when data has
// been received. It returns false when nothing was received yet; the
// request is then kept until the next push.
//
// Pushes and requests arriving while the engine runs stay in the mask and
// are served by the next call.
func (s *Service) TrySync() (synchronizer.Result, bool) {
	s.maskMu.Lock()
	s.mask |= syncRequested
	if s.mask&objectReceived == 0 {
		s.maskMu.Unlock()
		return synchronizer.Result{Outcome: synchronizer.OutcomeNoOp}, false
	}
	received, requested := s.received, s.requested
	s.maskMu.Unlock()

	s.engineMu.Lock()
	res := s.engine.TrySynchronize()
	s.engineMu.Unlock()

	if res.Outcome == synchronizer.OutcomeDone {
		s.maskMu.Lock()
		if s.requested == requested {
			s.mask &^= syncRequested
		}
		if s.received == received && !s.opts.LegacyAutoSync {
			s.mask &^= objectReceived
		}
		s.maskMu.Unlock()
	}
	return res, true
}

// Subscribe registers an engine listener
func (s *Service) Subscribe(l synchronizer.Listener) {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	s.engine.Subscribe(l)
}

// Reset clears the engine watermark so that timelines may restart from
// earlier timestamps
func (s *Service) Reset() {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	s.engine.Reset()
}

// BindOutput rebinds an output, effective from the next synchronization
func (s *Service) BindOutput(slot synchronizer.Slot, input, element int, sendStatus bool) error {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	return s.engine.BindOutput(slot, input, element, sendStatus)
}

// SetDelay updates a delay addressed by key, e.g. "frameDelay_0"
func (s *Service) SetDelay(key string, delay int64) error {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	return s.engine.SetDelayByKey(key, delay)
}

// Stats returns the engine statistics
func (s *Service) Stats() synchronizer.Stats {
	s.engineMu.Lock()
	defer s.engineMu.Unlock()
	return s.engine.Stats()
}

// Start spawns the worker goroutine. In legacy auto sync mode a timer
// goroutine is spawned as well.
func (s *Service) Start(ctx context.Context) error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if s.started {
		return fmt.Errorf("service already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(1)
	go s.loop()

	if s.opts.LegacyAutoSync {
		s.wg.Add(1)
		go s.tick()
	}

	// Wake the worker when the parent context is cancelled
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		s.maskMu.Lock()
		s.cond.Broadcast()
		s.maskMu.Unlock()
	}()

	s.logger.Info("synchronization service started", "legacyAutoSync", s.opts.LegacyAutoSync)
	return nil
}

// Stop shuts the worker down and waits for it. Idempotent.
func (s *Service) Stop() error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	s.cancel()
	s.wg.Wait()

	s.logger.Info("synchronization service stopped")
	return nil
}

func (s *Service) loop() {
	defer s.wg.Done()

	for {
		s.maskMu.Lock()
		for !s.pending {
			if s.ctx.Err() != nil {
				s.maskMu.Unlock()
				return
			}
			s.cond.Wait()
		}
		s.pending = false
		ready := s.mask&(objectReceived|syncRequested) == objectReceived|syncRequested
		s.maskMu.Unlock()

		if s.ctx.Err() != nil {
			return
		}
		if ready {
			s.TrySync()
		}
	}
}

func (s *Service) tick() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.TimeStep)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.TrySync()
		}
	}
}
