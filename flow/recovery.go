package flow

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wildshoppers/portal/logging"
	"github.com/wildshoppers/portal/provider"
	"github.com/wildshoppers/portal/session"
)

// Step is the recovery flow position.
type Step int

const (
	// StepRequest collects the account email.
	StepRequest Step = iota + 1
	// StepVerify collects the one-time code.
	StepVerify
	// StepReset collects the new password.
	StepReset
)

// GenericCodeSentMessage is shown after every code request, registered
// account or not, so the flow never confirms account existence.
const GenericCodeSentMessage = "If this email is registered, a verification code has been sent."

// ProviderAPI is the slice of the provider client the recovery flow uses.
type ProviderAPI interface {
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	VerifyOTP(ctx context.Context, email, token string) (*provider.Session, error)
	UpdateUser(ctx context.Context, password string) (*provider.UserRecord, error)
}

// Recovery drives the three-step password recovery flow. Verifying a code
// does not advance the flow by itself; the advance to the reset step happens
// only once the recovery flag is observed on the session store, which is the
// same signal the route guard keys on.
type Recovery struct {
	mu       sync.Mutex
	step     Step
	email    string
	verified bool

	store  *session.Store
	api    ProviderAPI
	domain string
	logger logging.Logger

	cancel func()
	wg     sync.WaitGroup
	once   sync.Once
}

// RecoveryOption customizes recovery construction.
type RecoveryOption func(*Recovery)

// WithRecoveryLogger overrides the default logger.
func WithRecoveryLogger(logger logging.Logger) RecoveryOption {
	return func(r *Recovery) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecovery builds the flow controller and starts watching the store for
// the recovery flag.
func NewRecovery(store *session.Store, api ProviderAPI, domain string, opts ...RecoveryOption) *Recovery {
	r := &Recovery{
		step:   StepRequest,
		store:  store,
		api:    api,
		domain: domain,
		logger: logging.Default{Name: "recovery"},
	}

	for _, opt := range opts {
		opt(r)
	}

	states, cancel := store.Watch()
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for state := range states {
			r.observe(state)
		}
	}()

	return r
}

// observe advances verify -> reset when the flag is up and the code has been
// verified. A cleared flag outside the flow's own completion path means the
// session ended; rewind to the start.
func (r *Recovery) observe(state session.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state.RecoveryInProgress {
		if r.step == StepVerify && r.verified {
			r.step = StepReset
		}
		return
	}

	if r.step == StepReset {
		r.resetLocked()
	}
}

// Step reports the current flow position.
func (r *Recovery) Step() Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step
}

// Email reports the address the flow was started with.
func (r *Recovery) Email() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.email
}

// RequestCode validates the address and asks the provider for a one-time
// code. The flow advances and answers with the same generic message whether
// or not the account exists; provider failures are logged, never surfaced.
func (r *Recovery) RequestCode(ctx context.Context, email string) (string, error) {
	payload := RequestCodePayload{Email: email, Domain: r.domain}
	if err := payload.Validate(); err != nil {
		return "", err
	}

	if err := r.api.ResetPasswordForEmail(ctx, email, ""); err != nil {
		r.logger.Error("recovery code request for %s: %v", email, err)
	}

	r.mu.Lock()
	r.email = email
	r.step = StepVerify
	r.verified = false
	r.mu.Unlock()

	return GenericCodeSentMessage, nil
}

// Resend requests a fresh code for the email already on file. The flow stays
// on the verification step.
func (r *Recovery) Resend(ctx context.Context) (string, error) {
	r.mu.Lock()
	email := r.email
	step := r.step
	r.mu.Unlock()

	if step == StepRequest || email == "" {
		return "", goerrors.New("request a code before resending", goerrors.CategoryBadInput)
	}

	if err := r.api.ResetPasswordForEmail(ctx, email, ""); err != nil {
		r.logger.Error("recovery code resend for %s: %v", email, err)
	}

	return GenericCodeSentMessage, nil
}

// VerifyCode submits the one-time code. On success the provider emits the
// recovery event, the listener raises the store flag, and the watcher moves
// the flow to the reset step. A bad code keeps the flow on the verify step.
func (r *Recovery) VerifyCode(ctx context.Context, code string) error {
	r.mu.Lock()
	email := r.email
	step := r.step
	r.mu.Unlock()

	if step != StepVerify {
		return goerrors.New("no code verification pending", goerrors.CategoryBadInput)
	}

	payload := VerifyCodePayload{Code: code}
	if err := payload.Validate(); err != nil {
		return err
	}

	if _, err := r.api.VerifyOTP(ctx, email, code); err != nil {
		return err
	}

	r.mu.Lock()
	r.verified = true
	r.mu.Unlock()

	// The flag may have landed before verified was set; the buffered watch
	// snapshot for it is already consumed by then.
	if r.store.Snapshot().RecoveryInProgress {
		r.observe(r.store.Snapshot())
	}

	return nil
}

// CompletePassword sets the new password, finalizes the session store
// through the one permitted mid-recovery identity write and rewinds the
// flow. Returns the signed-in identity for the post-reset redirect.
func (r *Recovery) CompletePassword(ctx context.Context, password, confirm string) (*session.Identity, error) {
	r.mu.Lock()
	step := r.step
	r.mu.Unlock()

	if step != StepReset {
		return nil, goerrors.New("verify the code before setting a new password", goerrors.CategoryBadInput)
	}

	payload := ResetPasswordPayload{Password: password, ConfirmPassword: confirm}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	user, err := r.api.UpdateUser(ctx, password)
	if err != nil {
		return nil, err
	}

	identity := user.Identity()
	if err := r.store.CompleteRecovery(ctx, identity); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()

	return identity, nil
}

// Reset rewinds the flow to the first step, discarding any progress.
func (r *Recovery) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *Recovery) resetLocked() {
	r.step = StepRequest
	r.email = ""
	r.verified = false
}

// Close stops the store watcher.
func (r *Recovery) Close() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
	r.wg.Wait()
}
