package session

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wildshoppers/portal/logging"
)

const (
	textCodeRecoveryInProgress = "RECOVERY_IN_PROGRESS"
	textCodeStoreClosed        = "SESSION_STORE_CLOSED"
)

// ErrRecoveryInProgress is returned when a plain identity update arrives
// while a password recovery is mid-flight. Only CompleteRecovery may set the
// identity in that window.
var ErrRecoveryInProgress = goerrors.New("identity update rejected while recovery is in progress", goerrors.CategoryConflict).
	WithTextCode(textCodeRecoveryInProgress).
	WithCode(goerrors.CodeConflict)

// ErrStoreClosed is returned for any mutation after Close.
var ErrStoreClosed = goerrors.New("session store is closed", goerrors.CategoryOperation).
	WithTextCode(textCodeStoreClosed)

// State is an immutable snapshot of the session store.
type State struct {
	Identity           *Identity
	RecoveryInProgress bool
	Initializing       bool
}

// Authenticated reports whether an identity is present.
func (s State) Authenticated() bool {
	return s.Identity != nil
}

// IdentitySource answers the one-time "is there an existing session"
// question at process start.
type IdentitySource interface {
	CurrentIdentity(ctx context.Context) (*Identity, error)
}

// Persistence mirrors the current identity into local durable storage.
type Persistence interface {
	Save(ctx context.Context, identity Identity) error
	Clear(ctx context.Context) error
}

type noopPersistence struct{}

func (noopPersistence) Save(context.Context, Identity) error { return nil }
func (noopPersistence) Clear(context.Context) error          { return nil }

type intentKind int

const (
	intentSetIdentity intentKind = iota
	intentClearSession
	intentSetRecoveryFlag
	intentCompleteRecovery
	intentFinishInitializing
)

// intent is the single message type consumed by the store loop. Both the
// auth event listener and the recovery controller funnel through it, which
// is what keeps the recovery invariant enforceable.
type intent struct {
	ctx      context.Context
	kind     intentKind
	identity *Identity
	flag     bool
	reply    chan error
}

// Store is the single source of truth for "who is signed in and are we
// mid-recovery". All writes are serialized by one consuming loop; reads are
// snapshot-consistent.
type Store struct {
	mu    sync.RWMutex
	state State

	intents chan intent
	done    chan struct{}
	closed  sync.Once
	loop    sync.WaitGroup

	watchMu   sync.Mutex
	watchers  map[int]chan State
	nextWatch int

	persist Persistence
	logger  logging.Logger
}

// StoreOption customizes store construction.
type StoreOption func(*Store)

// WithPersistence mirrors identity changes into durable local state.
func WithPersistence(p Persistence) StoreOption {
	return func(s *Store) {
		if p != nil {
			s.persist = p
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger logging.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore builds a store and starts its serializing loop. The store begins
// in the initializing state until Initialize has run.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		state:    State{Initializing: true},
		intents:  make(chan intent),
		done:     make(chan struct{}),
		watchers: map[int]chan State{},
		persist:  noopPersistence{},
		logger:   logging.Default{Name: "session"},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.loop.Add(1)
	go s.run()

	return s
}

func (s *Store) run() {
	defer s.loop.Done()
	for {
		select {
		case in := <-s.intents:
			in.reply <- s.apply(in)
		case <-s.done:
			return
		}
	}
}

// Initialize queries the identity source once for an existing session.
// Absence of a session is a normal outcome; failures are logged and
// swallowed so startup can proceed to the login screen.
func (s *Store) Initialize(ctx context.Context, src IdentitySource) {
	identity, err := src.CurrentIdentity(ctx)
	if err != nil {
		s.logger.Info("no existing session at startup: %v", err)
	}

	if identity != nil {
		if err := s.SetIdentity(ctx, identity); err != nil {
			s.logger.Error("restoring session identity: %v", err)
		}
	} else if err := s.persist.Clear(ctx); err != nil {
		s.logger.Error("clearing stale persisted identity: %v", err)
	}

	if err := s.send(intent{ctx: ctx, kind: intentFinishInitializing}); err != nil {
		s.logger.Error("finishing initialization: %v", err)
	}
}

// SetIdentity replaces the current identity and mirrors it to persistence.
// Rejected while a recovery is in progress; use CompleteRecovery for the
// recovery completion path.
func (s *Store) SetIdentity(ctx context.Context, identity *Identity) error {
	return s.send(intent{ctx: ctx, kind: intentSetIdentity, identity: identity})
}

// ClearSession drops the identity, resets the recovery flag and removes the
// persisted copy. Maps to the provider's sign-out event.
func (s *Store) ClearSession(ctx context.Context) error {
	return s.send(intent{ctx: ctx, kind: intentClearSession})
}

// SetRecoveryInProgress toggles the recovery flag. Side-effect free.
func (s *Store) SetRecoveryInProgress(ctx context.Context, flag bool) error {
	return s.send(intent{ctx: ctx, kind: intentSetRecoveryFlag, flag: flag})
}

// CompleteRecovery atomically clears the recovery flag and installs the
// finalized identity. This is the only identity write permitted while the
// flag is set.
func (s *Store) CompleteRecovery(ctx context.Context, identity *Identity) error {
	return s.send(intent{ctx: ctx, kind: intentCompleteRecovery, identity: identity})
}

func (s *Store) send(in intent) error {
	in.reply = make(chan error, 1)
	select {
	case s.intents <- in:
		return <-in.reply
	case <-s.done:
		return ErrStoreClosed
	case <-in.ctx.Done():
		return goerrors.Wrap(in.ctx.Err(), goerrors.CategoryOperation, "context cancelled before intent was applied")
	}
}

func (s *Store) apply(in intent) error {
	s.mu.Lock()

	var err error
	changed := true

	switch in.kind {
	case intentSetIdentity:
		switch {
		case in.identity == nil:
			err = goerrors.New("identity is required, use ClearSession to sign out", goerrors.CategoryBadInput)
			changed = false
		case s.state.RecoveryInProgress:
			err = ErrRecoveryInProgress
			changed = false
		case s.state.Identity != nil && s.state.Identity.Equal(*in.identity):
			// Idempotent: same identity, nothing to persist.
			changed = false
		default:
			identity := *in.identity
			s.state.Identity = &identity
			err = s.persistSave(in.ctx, identity)
		}

	case intentClearSession:
		s.state.Identity = nil
		s.state.RecoveryInProgress = false
		err = s.persistClear(in.ctx)

	case intentSetRecoveryFlag:
		changed = s.state.RecoveryInProgress != in.flag
		s.state.RecoveryInProgress = in.flag

	case intentCompleteRecovery:
		if in.identity == nil {
			err = goerrors.New("finalized identity is required to complete recovery", goerrors.CategoryBadInput)
			changed = false
			break
		}
		identity := *in.identity
		s.state.RecoveryInProgress = false
		s.state.Identity = &identity
		err = s.persistSave(in.ctx, identity)

	case intentFinishInitializing:
		changed = s.state.Initializing
		s.state.Initializing = false
	}

	state := s.snapshotLocked()
	s.mu.Unlock()

	if changed {
		s.notify(state)
	}

	return err
}

func (s *Store) persistSave(ctx context.Context, identity Identity) error {
	if err := s.persist.Save(ctx, identity); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist identity")
	}
	return nil
}

func (s *Store) persistClear(ctx context.Context) error {
	if err := s.persist.Clear(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear persisted identity")
	}
	return nil
}

// Snapshot returns a consistent copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	state := s.state
	if state.Identity != nil {
		identity := *state.Identity
		state.Identity = &identity
	}
	return state
}

// Watch delivers a state snapshot after every applied mutation. The channel
// is buffered; when a watcher falls behind the oldest snapshot is dropped so
// the loop never blocks. Call the returned func to unsubscribe.
func (s *Store) Watch() (<-chan State, func()) {
	ch := make(chan State, 16)

	s.watchMu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = ch
	s.watchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, id)
			s.watchMu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}

func (s *Store) notify(state State) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for _, ch := range s.watchers {
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}

// Close stops the serializing loop. Mutations after Close fail with
// ErrStoreClosed. Safe to call more than once.
func (s *Store) Close() {
	s.closed.Do(func() {
		close(s.done)
	})
	s.loop.Wait()
}
