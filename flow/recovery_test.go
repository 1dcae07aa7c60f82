package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wildshoppers/portal/provider"
	"github.com/wildshoppers/portal/session"
)

// fakeProvider mimics the provider plus its event listener: a successful
// OTP verification raises the store's recovery flag, the way the event
// stream does in production.
type fakeProvider struct {
	store *session.Store

	resetCalls  []string
	resetErr    error
	verifyErr   error
	updateErr   error
	updateCalls int
}

func (f *fakeProvider) ResetPasswordForEmail(_ context.Context, email, _ string) error {
	f.resetCalls = append(f.resetCalls, email)
	return f.resetErr
}

func (f *fakeProvider) VerifyOTP(ctx context.Context, email, token string) (*provider.Session, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	if err := f.store.SetRecoveryInProgress(ctx, true); err != nil {
		return nil, err
	}
	return &provider.Session{
		AccessToken: "recovery-token",
		User: provider.UserRecord{
			ID:    "7f1c3cd4-4b4c-43cb-96da-0ce18b7e1c8e",
			Email: email,
		},
	}, nil
}

func (f *fakeProvider) UpdateUser(context.Context, string) (*provider.UserRecord, error) {
	f.updateCalls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &provider.UserRecord{
		ID:    "7f1c3cd4-4b4c-43cb-96da-0ce18b7e1c8e",
		Email: "jane.doe@cit.edu",
		UserMetadata: provider.Metadata{
			FullName: "Jane Doe",
			UserType: "student",
		},
	}, nil
}

func newRecoveryFixture(t *testing.T) (*Recovery, *fakeProvider, *session.Store) {
	t.Helper()

	store := session.NewStore()
	t.Cleanup(store.Close)

	api := &fakeProvider{store: store}
	recovery := NewRecovery(store, api, "cit.edu")
	t.Cleanup(recovery.Close)

	return recovery, api, store
}

func TestRecoveryRequestCode(t *testing.T) {
	ctx := context.Background()

	t.Run("advances with generic message", func(t *testing.T) {
		recovery, api, _ := newRecoveryFixture(t)

		message, err := recovery.RequestCode(ctx, "jane.doe@cit.edu")
		require.NoError(t, err)
		assert.Equal(t, GenericCodeSentMessage, message)
		assert.Equal(t, StepVerify, recovery.Step())
		assert.Equal(t, []string{"jane.doe@cit.edu"}, api.resetCalls)
	})

	t.Run("provider failure still answers the generic message", func(t *testing.T) {
		recovery, api, _ := newRecoveryFixture(t)
		api.resetErr = context.DeadlineExceeded

		message, err := recovery.RequestCode(ctx, "nobody@cit.edu")
		require.NoError(t, err)
		assert.Equal(t, GenericCodeSentMessage, message)
		assert.Equal(t, StepVerify, recovery.Step())
	})

	t.Run("rejects non campus addresses without a provider call", func(t *testing.T) {
		recovery, api, _ := newRecoveryFixture(t)

		_, err := recovery.RequestCode(ctx, "jane.doe@gmail.com")
		require.Error(t, err)
		assert.Equal(t, StepRequest, recovery.Step())
		assert.Empty(t, api.resetCalls)
	})
}

func TestRecoveryResend(t *testing.T) {
	ctx := context.Background()

	t.Run("resends for the email on file", func(t *testing.T) {
		recovery, api, _ := newRecoveryFixture(t)

		_, err := recovery.RequestCode(ctx, "jane.doe@cit.edu")
		require.NoError(t, err)

		message, err := recovery.Resend(ctx)
		require.NoError(t, err)
		assert.Equal(t, GenericCodeSentMessage, message)
		assert.Len(t, api.resetCalls, 2)
		assert.Equal(t, StepVerify, recovery.Step())
	})

	t.Run("refuses before a request", func(t *testing.T) {
		recovery, _, _ := newRecoveryFixture(t)

		_, err := recovery.Resend(ctx)
		assert.Error(t, err)
	})
}

func TestRecoveryVerifyCode(t *testing.T) {
	ctx := context.Background()

	t.Run("bad code keeps the flow on verify", func(t *testing.T) {
		recovery, api, _ := newRecoveryFixture(t)
		api.verifyErr = provider.ErrCodeInvalidOrExpired

		_, err := recovery.RequestCode(ctx, "jane.doe@cit.edu")
		require.NoError(t, err)

		err = recovery.VerifyCode(ctx, "000000")
		require.Error(t, err)
		assert.True(t, provider.IsInvalidOTP(err))
		assert.Equal(t, StepVerify, recovery.Step())
	})

	t.Run("malformed code never reaches the provider", func(t *testing.T) {
		recovery, _, _ := newRecoveryFixture(t)

		_, err := recovery.RequestCode(ctx, "jane.doe@cit.edu")
		require.NoError(t, err)

		assert.Error(t, recovery.VerifyCode(ctx, "12345"))
		assert.Equal(t, StepVerify, recovery.Step())
	})

	t.Run("flag observation advances to reset", func(t *testing.T) {
		recovery, _, store := newRecoveryFixture(t)

		_, err := recovery.RequestCode(ctx, "jane.doe@cit.edu")
		require.NoError(t, err)

		require.NoError(t, recovery.VerifyCode(ctx, "123456"))

		assert.Eventually(t, func() bool {
			return recovery.Step() == StepReset
		}, time.Second, 10*time.Millisecond)
		assert.True(t, store.Snapshot().RecoveryInProgress)
	})

	t.Run("out of order verify is refused", func(t *testing.T) {
		recovery, _, _ := newRecoveryFixture(t)
		assert.Error(t, recovery.VerifyCode(ctx, "123456"))
	})
}

func TestRecoveryCompletePassword(t *testing.T) {
	ctx := context.Background()

	runToReset := func(t *testing.T, recovery *Recovery) {
		t.Helper()
		_, err := recovery.RequestCode(ctx, "jane.doe@cit.edu")
		require.NoError(t, err)
		require.NoError(t, recovery.VerifyCode(ctx, "123456"))
		require.Eventually(t, func() bool {
			return recovery.Step() == StepReset
		}, time.Second, 10*time.Millisecond)
	}

	t.Run("happy path signs the user in", func(t *testing.T) {
		recovery, _, store := newRecoveryFixture(t)
		runToReset(t, recovery)

		identity, err := recovery.CompletePassword(ctx, "newsecret", "newsecret")
		require.NoError(t, err)
		require.NotNil(t, identity)
		assert.Equal(t, "jane.doe@cit.edu", identity.Email)

		state := store.Snapshot()
		assert.False(t, state.RecoveryInProgress)
		require.True(t, state.Authenticated())
		assert.Equal(t, "jane.doe@cit.edu", state.Identity.Email)
		assert.Equal(t, StepRequest, recovery.Step())
	})

	t.Run("short password is rejected locally", func(t *testing.T) {
		recovery, api, _ := newRecoveryFixture(t)
		runToReset(t, recovery)

		_, err := recovery.CompletePassword(ctx, "tiny", "tiny")
		require.Error(t, err)
		assert.Equal(t, 0, api.updateCalls)
		assert.Equal(t, StepReset, recovery.Step())
	})

	t.Run("mismatched confirmation is rejected locally", func(t *testing.T) {
		recovery, api, _ := newRecoveryFixture(t)
		runToReset(t, recovery)

		_, err := recovery.CompletePassword(ctx, "newsecret", "different")
		require.Error(t, err)
		assert.Equal(t, 0, api.updateCalls)
	})

	t.Run("refused before reaching the reset step", func(t *testing.T) {
		recovery, _, _ := newRecoveryFixture(t)
		_, err := recovery.CompletePassword(ctx, "newsecret", "newsecret")
		assert.Error(t, err)
	})
}
