package flow

import (
	"context"
	"sync"

	"github.com/wildshoppers/portal/logging"
	"github.com/wildshoppers/portal/provider"
	"github.com/wildshoppers/portal/session"
)

// Listener bridges the provider's auth event stream into session store
// intents. It is the only component that translates events to state; the
// store itself decides what is legal.
type Listener struct {
	store  *session.Store
	events <-chan provider.AuthEvent
	cancel func()
	logger logging.Logger

	wg   sync.WaitGroup
	once sync.Once
}

// ListenerOption customizes listener construction.
type ListenerOption func(*Listener)

// WithListenerLogger overrides the default logger.
func WithListenerLogger(logger logging.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewListener wires a subscription to the store. cancel is the
// subscription's cancel func and is invoked on Close.
func NewListener(store *session.Store, events <-chan provider.AuthEvent, cancel func(), opts ...ListenerOption) *Listener {
	l := &Listener{
		store:  store,
		events: events,
		cancel: cancel,
		logger: logging.Default{Name: "listener"},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run consumes events until the subscription channel closes. Events are
// handled strictly in arrival order.
func (l *Listener) Run(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for ev := range l.events {
			l.handle(ctx, ev)
		}
	}()
}

func (l *Listener) handle(ctx context.Context, ev provider.AuthEvent) {
	switch {
	case ev.Kind == provider.EventPasswordRecovery:
		// Recovery events only raise the flag. The session they carry is
		// scoped to the recovery and must not replace the identity.
		if err := l.store.SetRecoveryInProgress(ctx, true); err != nil {
			l.logger.Error("raising recovery flag: %v", err)
		}

	case ev.Kind == provider.EventSignedOut, ev.Session == nil:
		if err := l.store.ClearSession(ctx); err != nil {
			l.logger.Error("clearing session: %v", err)
		}

	default:
		if l.store.Snapshot().RecoveryInProgress {
			// Mid-recovery the provider still emits session events for the
			// recovery session. Skipping them here keeps the user parked on
			// the reset screen instead of bouncing to a dashboard.
			l.logger.Debug("skipping %s event during recovery", ev.Kind)
			return
		}
		if err := l.store.SetIdentity(ctx, ev.Session.Identity()); err != nil {
			l.logger.Error("applying %s event: %v", ev.Kind, err)
		}
	}
}

// Close cancels the subscription and waits for the consuming goroutine.
func (l *Listener) Close() {
	l.once.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
	})
	l.wg.Wait()
}
