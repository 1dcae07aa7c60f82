package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/wildshoppers/portal/logging"
	"github.com/wildshoppers/portal/session"
)

// requestTimeout bounds every provider call. Failures surface once; nothing
// is retried automatically.
const requestTimeout = 15 * time.Second

// Metadata is the account metadata persisted with an identity at sign-up.
type Metadata struct {
	FullName    string `json:"full_name,omitempty"`
	UserType    string `json:"user_type,omitempty"`
	StudentID   string `json:"student_id,omitempty"`
	StaffID     string `json:"staff_id,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Address     string `json:"address,omitempty"`
}

// UserRecord is the provider's view of an account.
type UserRecord struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	UserMetadata Metadata `json:"user_metadata"`
}

// Identity builds the storefront identity from the provider record, with
// the same fallbacks the screens rely on: name falls back to email, role
// falls back to student.
func (u UserRecord) Identity() *session.Identity {
	name := u.UserMetadata.FullName
	if name == "" {
		name = u.Email
	}

	return &session.Identity{
		ID:          u.ID,
		Email:       u.Email,
		Name:        name,
		Role:        session.ParseRole(u.UserMetadata.UserType),
		StudentID:   u.UserMetadata.StudentID,
		StaffID:     u.UserMetadata.StaffID,
		PhoneNumber: u.UserMetadata.PhoneNumber,
		Address:     u.UserMetadata.Address,
	}
}

// Session is a provider-issued authenticated context.
type Session struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         UserRecord `json:"user"`
}

// Identity builds the storefront identity carried by this session.
func (s *Session) Identity() *session.Identity {
	if s == nil {
		return nil
	}
	return s.User.Identity()
}

// Config configures the provider client.
type Config struct {
	// ProjectURL is the provider base, e.g. https://xyz.example.co.
	ProjectURL string
	// AnonKey is sent as the apikey header on every request.
	AnonKey string
	// RedirectTo is appended to recovery emails so the provider links back
	// to the recovery screen.
	RedirectTo string
}

// TokenKeeper stores the refresh token across restarts so the provider
// session can be restored without asking for credentials again.
type TokenKeeper interface {
	SaveRefreshToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Client is the identity provider REST client. It holds the process's
// current session and is the single emitter of auth lifecycle events.
type Client struct {
	cfg    Config
	prefix string
	http   *http.Client

	mu      sync.RWMutex
	current *Session

	events   *broadcaster
	verifier *TokenVerifier
	keeper   TokenKeeper
	logger   logging.Logger
}

// ClientOption customizes client construction.
type ClientOption func(*Client)

// WithClientLogger overrides the default logger.
func WithClientLogger(logger logging.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTokenVerifier enables local validation of access tokens before they
// are trusted for session restoration.
func WithTokenVerifier(v *TokenVerifier) ClientOption {
	return func(c *Client) {
		c.verifier = v
	}
}

// WithTokenKeeper persists the refresh token on every session change and
// wipes it when the session is dropped.
func WithTokenKeeper(k TokenKeeper) ClientOption {
	return func(c *Client) {
		c.keeper = k
	}
}

// WithHTTPClient overrides the HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient builds a provider client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.ProjectURL == "" {
		return nil, goerrors.New("provider project URL is required", goerrors.CategoryBadInput)
	}
	if cfg.AnonKey == "" {
		return nil, goerrors.New("provider anon key is required", goerrors.CategoryBadInput)
	}

	c := &Client{
		cfg:    cfg,
		prefix: strings.TrimRight(cfg.ProjectURL, "/") + "/auth/v1",
		http:   &http.Client{Timeout: requestTimeout},
		logger: logging.Default{Name: "provider"},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.events == nil {
		c.events = newBroadcaster(c.logger)
	}

	return c, nil
}

// Subscribe attaches to the auth event stream. Events arrive in emission
// order; cancel is idempotent and closes the channel.
func (c *Client) Subscribe() (<-chan AuthEvent, func()) {
	return c.events.subscribe()
}

// CurrentIdentity implements session.IdentitySource: it answers the
// one-time startup question of whether a session already exists. Absence is
// (nil, nil), never an error.
func (c *Client) CurrentIdentity(ctx context.Context) (*session.Identity, error) {
	sess := c.CurrentSession()
	if sess == nil {
		return nil, nil
	}

	if c.verifier != nil {
		if _, err := c.verifier.Claims(sess.AccessToken); err != nil {
			c.dropSession()
			return nil, nil
		}
	}

	user, err := c.GetUser(ctx)
	if err != nil {
		c.dropSession()
		return nil, nil
	}

	c.events.emit(AuthEvent{Kind: EventInitialSession, Session: sess})
	return user.Identity(), nil
}

// CurrentSession returns the held session, if any.
func (c *Client) CurrentSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SignInWithPassword exchanges credentials for a session. Any provider
// rejection collapses into ErrInvalidCredentials.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	sess := &Session{}

	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", body, sess); err != nil {
		c.logger.Debug("sign-in rejected for %s: %v", email, err)
		return nil, ErrInvalidCredentials
	}

	c.setSession(sess)
	c.events.emit(AuthEvent{Kind: EventSignedIn, Session: sess})
	return sess, nil
}

// SignUp registers a new account with the given metadata. Relies solely on
// the provider's duplicate detection.
func (c *Client) SignUp(ctx context.Context, email, password string, meta Metadata) (*Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     meta,
	}

	sess := &Session{}
	if err := c.do(ctx, http.MethodPost, "/signup", body, sess); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && looksLikeDuplicate(richErr.Message) {
			return nil, ErrAlreadyRegistered
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "sign-up failed")
	}

	if sess.AccessToken != "" {
		c.setSession(sess)
		c.events.emit(AuthEvent{Kind: EventSignedIn, Session: sess})
	}

	return sess, nil
}

// SignOut revokes the session server-side, drops the local copy and emits
// the sign-out event. The local session is cleared even when revocation
// fails, so a dead token can never pin the UI in a signed-in state.
func (c *Client) SignOut(ctx context.Context) error {
	sess := c.CurrentSession()

	if sess != nil {
		if err := c.do(ctx, http.MethodPost, "/logout", nil, nil); err != nil {
			c.logger.Error("provider sign-out failed: %v", err)
		}
	}

	c.dropSession()
	c.events.emit(AuthEvent{Kind: EventSignedOut, Session: nil})
	return nil
}

// ResetPasswordForEmail asks the provider to send a one-time recovery code.
// Callers collapse success and failure into the same user-visible outcome.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	path := "/recover"
	if redirectTo == "" {
		redirectTo = c.cfg.RedirectTo
	}
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}

	body := map[string]string{"email": email}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "recovery request failed")
	}
	return nil
}

// VerifyOTP validates a recovery code. On success the provider issues a
// recovery session; the client stores it and emits EventPasswordRecovery
// on the stream, which is what eventually advances the recovery flow.
func (c *Client) VerifyOTP(ctx context.Context, email, token string) (*Session, error) {
	body := map[string]string{
		"type":  "recovery",
		"email": email,
		"token": token,
	}

	sess := &Session{}
	if err := c.do(ctx, http.MethodPost, "/verify", body, sess); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) && looksLikeInvalidOTP(richErr.Message) {
			return nil, ErrCodeInvalidOrExpired
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "code verification failed")
	}

	c.setSession(sess)
	c.events.emit(AuthEvent{Kind: EventPasswordRecovery, Session: sess})
	return sess, nil
}

// UpdateUser sets a new password for the current (recovering) session and
// returns the finalized user record.
func (c *Client) UpdateUser(ctx context.Context, password string) (*UserRecord, error) {
	if c.CurrentSession() == nil {
		return nil, ErrNoSession
	}

	body := map[string]string{"password": password}
	user := &UserRecord{}

	if err := c.do(ctx, http.MethodPut, "/user", body, user); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "password update failed")
	}

	c.mu.Lock()
	if c.current != nil {
		c.current.User = *user
	}
	c.mu.Unlock()

	return user, nil
}

// GetUser fetches the account behind the current session.
func (c *Client) GetUser(ctx context.Context) (*UserRecord, error) {
	if c.CurrentSession() == nil {
		return nil, ErrNoSession
	}

	user := &UserRecord{}
	if err := c.do(ctx, http.MethodGet, "/user", nil, user); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to fetch provider user")
	}
	return user, nil
}

// RefreshSession exchanges the refresh token for a new session and emits
// the token-refreshed event.
func (c *Client) RefreshSession(ctx context.Context) (*Session, error) {
	sess := c.CurrentSession()
	if sess == nil || sess.RefreshToken == "" {
		return nil, ErrNoSession
	}

	body := map[string]string{"refresh_token": sess.RefreshToken}
	renewed := &Session{}

	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", body, renewed); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "session refresh failed").
			WithCode(goerrors.CodeUnauthorized)
	}

	c.setSession(renewed)
	c.events.emit(AuthEvent{Kind: EventTokenRefreshed, Session: renewed})
	return renewed, nil
}

// RestoreSession rebuilds the provider session from a persisted refresh
// token, typically at startup. No event is emitted here; the initial-session
// event fires once CurrentIdentity confirms the restored session.
func (c *Client) RestoreSession(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrNoSession
	}

	body := map[string]string{"refresh_token": refreshToken}
	sess := &Session{}

	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", body, sess); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "session restore failed").
			WithCode(goerrors.CodeUnauthorized)
	}

	c.setSession(sess)
	return sess, nil
}

func (c *Client) setSession(sess *Session) {
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()

	if c.keeper != nil && sess != nil && sess.RefreshToken != "" {
		if err := c.keeper.SaveRefreshToken(context.Background(), sess.RefreshToken); err != nil {
			c.logger.Error("failed to persist refresh token: %v", err)
		}
	}
}

func (c *Client) dropSession() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()

	if c.keeper != nil {
		if err := c.keeper.Clear(context.Background()); err != nil {
			c.logger.Error("failed to clear persisted refresh token: %v", err)
		}
	}
}

// apiError is the provider's error envelope; fields vary by endpoint.
type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e apiError) text() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return "provider request failed"
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.prefix+path, reader)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build provider request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.AnonKey)

	token := c.cfg.AnonKey
	if sess := c.CurrentSession(); sess != nil && sess.AccessToken != "" {
		token = sess.AccessToken
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "provider request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read provider response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := apiError{}
		if err := json.Unmarshal(raw, &apiErr); err != nil {
			return goerrors.New(fmt.Sprintf("provider returned status %d", resp.StatusCode), goerrors.CategoryOperation)
		}
		return goerrors.New(apiErr.text(), goerrors.CategoryOperation).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode provider response")
		}
	}

	return nil
}
