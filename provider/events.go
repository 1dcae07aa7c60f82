package provider

import (
	"sync"

	"github.com/wildshoppers/portal/logging"
)

// EventKind names the auth lifecycle events the provider emits.
type EventKind string

const (
	// EventInitialSession fires when an existing session is found at startup.
	EventInitialSession EventKind = "INITIAL_SESSION"
	// EventSignedIn fires after a successful password sign-in or sign-up.
	EventSignedIn EventKind = "SIGNED_IN"
	// EventTokenRefreshed fires when the access token is renewed.
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	// EventPasswordRecovery fires when the provider recognizes an in-flight
	// recovery token, e.g. after OTP verification. It carries the recovery
	// session but must not be treated as a normal sign-in.
	EventPasswordRecovery EventKind = "PASSWORD_RECOVERY"
	// EventSignedOut fires on sign-out; the session is absent.
	EventSignedOut EventKind = "SIGNED_OUT"
)

// AuthEvent is one entry of the provider's event stream.
type AuthEvent struct {
	Kind    EventKind
	Session *Session
}

// subscriberBufferSize bounds how far a slow subscriber may lag before the
// oldest event is dropped. The single listener drains far faster than the
// provider emits.
const subscriberBufferSize = 64

type broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan AuthEvent
	nextID int
	logger logging.Logger
}

func newBroadcaster(logger logging.Logger) *broadcaster {
	return &broadcaster{
		subs:   map[int]chan AuthEvent{},
		logger: logger,
	}
}

// subscribe registers a new subscriber channel. The returned cancel func is
// idempotent and closes the channel, ending any range loop over it.
func (b *broadcaster) subscribe() (<-chan AuthEvent, func()) {
	ch := make(chan AuthEvent, subscriberBufferSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}

// emit delivers the event to every subscriber in registration order. Events
// for one subscriber are delivered in emission order; a full buffer drops
// the oldest event rather than blocking provider operations.
func (b *broadcaster) emit(event AuthEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
				b.logger.Error("auth event dropped for slow subscriber: %s", event.Kind)
			default:
			}
			select {
			case ch <- event:
			default:
			}
		}
	}
}
