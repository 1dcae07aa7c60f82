package session

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ClientState is the single-row table holding the serialized current
// identity and the provider refresh token, refreshed on every identity
// change and removed on sign-out.
type ClientState struct {
	bun.BaseModel `bun:"table:client_state,alias:cst"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Payload      string     `bun:"payload,notnull" json:"payload"`
	RefreshToken string     `bun:"refresh_token" json:"-"`
	UpdatedAt    *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

const clientStateKey = "portal.client_state"

// clientStateID derives the fixed row key so saves are upserts against the
// same record across restarts.
func clientStateID() uuid.UUID {
	id, err := hashid.NewUUID(clientStateKey)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// LocalState persists the current identity to a local SQLite table. It is
// the storefront's durable mirror for reload survival.
type LocalState struct {
	repo repository.Repository[*ClientState]
	db   *bun.DB
}

var _ Persistence = (*LocalState)(nil)

// NewLocalState builds the persistence layer on top of the shared bun DB.
func NewLocalState(db *bun.DB) *LocalState {
	handlers := repository.ModelHandlers[*ClientState]{
		NewRecord: func() *ClientState {
			return &ClientState{}
		},
		GetID: func(record *ClientState) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ClientState, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "id"
		},
	}

	return &LocalState{
		repo: repository.NewRepository[*ClientState](db, handlers),
		db:   db,
	}
}

// Init creates the backing table when missing.
func (l *LocalState) Init(ctx context.Context) error {
	if _, err := l.db.NewCreateTable().Model((*ClientState)(nil)).IfNotExists().Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create client_state table")
	}
	return nil
}

// Save upserts the serialized identity into the fixed row.
func (l *LocalState) Save(ctx context.Context, identity Identity) error {
	raw, err := json.Marshal(identity)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to serialize identity")
	}

	now := time.Now()
	record := &ClientState{
		ID:        clientStateID(),
		Payload:   string(raw),
		UpdatedAt: &now,
	}

	if _, err := l.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist client state")
	}

	return nil
}

// SaveRefreshToken upserts the refresh token into the fixed row without
// touching the identity payload.
func (l *LocalState) SaveRefreshToken(ctx context.Context, token string) error {
	now := time.Now()
	record := &ClientState{
		ID:           clientStateID(),
		RefreshToken: token,
		UpdatedAt:    &now,
	}

	if _, err := l.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist refresh token")
	}

	return nil
}

// LoadRefreshToken reads the persisted refresh token; empty when nothing
// was saved.
func (l *LocalState) LoadRefreshToken(ctx context.Context) (string, error) {
	record, err := l.repo.GetByID(ctx, clientStateID().String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", nil
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load refresh token")
	}
	return record.RefreshToken, nil
}

// Clear removes the persisted identity row.
func (l *LocalState) Clear(ctx context.Context) error {
	if _, err := l.db.NewDelete().
		Model((*ClientState)(nil)).
		Where("id = ?", clientStateID()).
		Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear client state")
	}
	return nil
}

// Load reads the persisted identity, if any.
func (l *LocalState) Load(ctx context.Context) (*Identity, error) {
	record, err := l.repo.GetByID(ctx, clientStateID().String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load client state")
	}

	// A row holding only a refresh token has no identity yet.
	if record.Payload == "" {
		return nil, nil
	}

	identity := &Identity{}
	if err := json.Unmarshal([]byte(record.Payload), identity); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode persisted identity")
	}

	return identity, nil
}
