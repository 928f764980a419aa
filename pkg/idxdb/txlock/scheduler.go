// Package txlock schedules transactions against a fixed set of stores.
//
// Every store has an exclusive flag and a shared counter. A transaction asks
// for a set of stores in exclusive (read-write) or shared (read-only) mode and
// is admitted once no store it needs is held exclusively and, for exclusive
// requests, no store it needs is shared.
//
// # Admission order
//
// Pending requests are scanned in arrival order after every new request and
// every release, and every admissible request is granted. A blocked request
// does not hold back later ones, so admission is not FIFO. Continuous shared
// traffic can starve an exclusive request; callers that need fairness must
// layer it on top.
//
// # Lifecycle
//
// Admitted transactions must be released with [Scheduler.Complete] or
// [Scheduler.Fail]. [Scheduler.CloseWhenPossible] rejects pending and future
// requests and resolves once every admitted transaction was released.
package txlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Options configures a [Scheduler]. The zero value is usable.
type Options struct {
	// SingleWriter treats all stores as one lock: an exclusive transaction
	// waits for every running transaction and blocks everything while it
	// runs, whatever stores it names. For backends whose transactions span
	// the whole database.
	SingleWriter bool

	// Logger receives admission and release events at debug level, closing
	// at info level and caller contract violations at error level.
	// Nil discards.
	Logger *slog.Logger
}

// Scheduler tracks per-store locks and the admission queue.
// It is safe for concurrent use.
type Scheduler struct {
	opts  Options
	log   *slog.Logger
	names []string // schema order

	mu      sync.Mutex
	locks   map[string]*lockState
	pending []*request
	active  map[*Token]struct{}

	// exclusiveActive counts admitted exclusive tokens; SingleWriter only.
	exclusiveActive int

	closing bool
	closed  chan struct{}
}

type lockState struct {
	exclusive bool
	shared    int
}

type requestState int

const (
	requestPending requestState = iota
	requestGranted
	requestRejected
)

type request struct {
	token *Token
	state requestState
	err   error
	ready chan struct{} // closed when state leaves requestPending
}

// New returns a scheduler over storeNames with every lock free.
// Duplicate names are ignored.
func New(storeNames []string, opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Scheduler{
		opts:   opts,
		log:    logger,
		locks:  make(map[string]*lockState, len(storeNames)),
		active: make(map[*Token]struct{}),
		closed: make(chan struct{}),
	}

	for _, name := range storeNames {
		if _, dup := s.locks[name]; dup {
			continue
		}

		s.locks[name] = &lockState{}
		s.names = append(s.names, name)
	}

	return s
}

// StoreNames returns the scheduled store names in construction order.
func (s *Scheduler) StoreNames() []string {
	return slices.Clone(s.names)
}

// OpenTransaction blocks until a transaction over storeNames is admitted.
//
// Empty storeNames means every store. Duplicates are collapsed.
//
// Returns [ErrUnknownStore] without queuing when a name is not scheduled,
// [ErrProviderClosing] when the scheduler is or starts closing before
// admission, and ctx's error when ctx ends first. A request withdrawn by ctx
// never holds locks afterwards.
func (s *Scheduler) OpenTransaction(ctx context.Context, storeNames []string, exclusive bool) (*Token, error) {
	if ctx == nil {
		return nil, errors.New("txlock: context is nil")
	}

	names, err := s.resolve(storeNames)
	if err != nil {
		return nil, err
	}

	token := &Token{
		id:         uuid.Must(uuid.NewV7()).String(),
		storeNames: names,
		exclusive:  exclusive,
		owner:      s,
		done:       make(chan struct{}),
	}

	req := &request{token: token, ready: make(chan struct{})}

	s.mu.Lock()

	if s.closing {
		s.mu.Unlock()

		return nil, ErrProviderClosing
	}

	s.pending = append(s.pending, req)
	s.log.Debug("transaction requested",
		slog.String("tx", token.id), slog.Any("stores", names), slog.Bool("exclusive", exclusive))
	s.admitLocked()
	s.mu.Unlock()

	select {
	case <-req.ready:
	case <-ctx.Done():
		s.mu.Lock()
		defer s.mu.Unlock()

		switch req.state {
		case requestPending:
			s.pending = slices.DeleteFunc(s.pending, func(r *request) bool { return r == req })
			s.log.Debug("transaction request withdrawn", slog.String("tx", token.id))
		case requestGranted:
			// Lost the race against admission; hand the locks back.
			s.releaseLocked(token, ctx.Err())
		case requestRejected:
			return nil, req.err
		}

		return nil, fmt.Errorf("txlock: waiting for admission: %w", ctx.Err())
	}

	if req.state == requestRejected {
		return nil, req.err
	}

	return token, nil
}

// Complete releases token's locks and resolves its completion handle.
//
// Returns [ErrDoubleCompletion] when token was already completed or failed
// and [ErrUnknownTransaction] when this scheduler does not track it.
func (s *Scheduler) Complete(token *Token) error {
	return s.finish(token, nil, "complete")
}

// Fail releases token's locks like [Scheduler.Complete] but resolves its
// completion handle with reason ([ErrFailed] when nil).
func (s *Scheduler) Fail(token *Token, reason error) error {
	if reason == nil {
		reason = ErrFailed
	}

	return s.finish(token, reason, "fail")
}

func (s *Scheduler) finish(token *Token, reason error, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == nil || token.owner != s {
		s.log.Error("release of unknown transaction", slog.String("op", op))

		return ErrUnknownTransaction
	}

	if token.completed {
		s.log.Error("transaction released twice", slog.String("op", op), slog.String("tx", token.id))

		return fmt.Errorf("%w: %s", ErrDoubleCompletion, token.id)
	}

	if _, ok := s.active[token]; !ok {
		s.log.Error("release of unknown transaction", slog.String("op", op), slog.String("tx", token.id))

		return fmt.Errorf("%w: %s", ErrUnknownTransaction, token.id)
	}

	s.releaseLocked(token, reason)

	return nil
}

// CloseWhenPossible stops admitting transactions and returns a channel that
// is closed once no admitted transaction remains. Pending requests fail with
// [ErrProviderClosing]. Calling it again returns the same channel.
func (s *Scheduler) CloseWhenPossible() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closing {
		s.closing = true
		s.log.Info("scheduler closing",
			slog.Int("active", len(s.active)), slog.Int("pending", len(s.pending)))

		for _, req := range s.pending {
			req.state = requestRejected
			req.err = ErrProviderClosing
			close(req.ready)
		}

		s.pending = nil
		s.maybeClosedLocked()
	}

	return s.closed
}

// Locks reports the lock state of store. Unknown stores report free.
func (s *Scheduler) Locks(store string) (exclusive bool, shared int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.locks[store]
	if !ok {
		return false, 0
	}

	return st.exclusive, st.shared
}

// Pending returns the number of queued, not yet admitted requests.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pending)
}

// Active returns the number of admitted, not yet released transactions.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.active)
}

func (s *Scheduler) resolve(storeNames []string) ([]string, error) {
	if len(storeNames) == 0 {
		if len(s.names) == 0 {
			return nil, fmt.Errorf("%w: scheduler has no stores", ErrUnknownStore)
		}

		return slices.Clone(s.names), nil
	}

	out := make([]string, 0, len(storeNames))

	for _, name := range storeNames {
		if _, ok := s.locks[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStore, name)
		}

		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}

	return out, nil
}

// admitLocked grants every admissible pending request in arrival order.
func (s *Scheduler) admitLocked() {
	for i := 0; i < len(s.pending); {
		req := s.pending[i]

		if !s.admissibleLocked(req.token) {
			i++

			continue
		}

		s.grantLocked(req.token)
		s.pending = slices.Delete(s.pending, i, i+1)

		req.state = requestGranted
		close(req.ready)
	}
}

func (s *Scheduler) admissibleLocked(t *Token) bool {
	if s.opts.SingleWriter {
		if s.exclusiveActive > 0 {
			return false
		}

		if t.exclusive && len(s.active) > 0 {
			return false
		}
	}

	for _, name := range t.storeNames {
		st := s.locks[name]

		if st.exclusive {
			return false
		}

		if t.exclusive && st.shared > 0 {
			return false
		}
	}

	return true
}

func (s *Scheduler) grantLocked(t *Token) {
	for _, name := range t.storeNames {
		st := s.locks[name]
		if t.exclusive {
			st.exclusive = true
		} else {
			st.shared++
		}
	}

	if t.exclusive {
		s.exclusiveActive++
	}

	s.active[t] = struct{}{}

	s.log.Debug("transaction admitted", slog.String("tx", t.id), slog.Bool("exclusive", t.exclusive))
}

func (s *Scheduler) releaseLocked(t *Token, reason error) {
	for _, name := range t.storeNames {
		st := s.locks[name]
		if t.exclusive {
			st.exclusive = false
		} else {
			st.shared--
		}
	}

	if t.exclusive {
		s.exclusiveActive--
	}

	delete(s.active, t)

	t.completed = true
	t.err = reason
	close(t.done)

	if reason != nil {
		s.log.Debug("transaction failed", slog.String("tx", t.id), slog.Any("reason", reason))
	} else {
		s.log.Debug("transaction completed", slog.String("tx", t.id))
	}

	s.admitLocked()
	s.maybeClosedLocked()
}

func (s *Scheduler) maybeClosedLocked() {
	if !s.closing || len(s.active) > 0 {
		return
	}

	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}
