package profile

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/wildshoppers/portal/session"
)

// Profile is the locally mirrored account row. The identity provider owns
// credentials; this table carries the columns the screens render and edit.
type Profile struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID          uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email       string     `bun:"email,notnull,unique" json:"email"`
	FullName    string     `bun:"full_name" json:"full_name"`
	UserType    string     `bun:"user_type,notnull,default:'student'" json:"user_type"`
	StudentID   string     `bun:"student_id" json:"student_id,omitempty"`
	StaffID     string     `bun:"staff_id" json:"staff_id,omitempty"`
	PhoneNumber string     `bun:"phone_number" json:"phone_number,omitempty"`
	Address     string     `bun:"address" json:"address,omitempty"`
	CreatedAt   *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt   *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// MergeIdentity overlays the profile columns onto a provider identity so
// screens see locally edited contact details immediately.
func (p *Profile) MergeIdentity(identity session.Identity) *session.Identity {
	merged := identity
	if p.FullName != "" {
		merged.Name = p.FullName
	}
	if p.PhoneNumber != "" {
		merged.PhoneNumber = p.PhoneNumber
	}
	if p.Address != "" {
		merged.Address = p.Address
	}
	if p.StudentID != "" {
		merged.StudentID = p.StudentID
	}
	if p.StaffID != "" {
		merged.StaffID = p.StaffID
	}
	return &merged
}

// ContactUpdate is the slice of a profile the account screen may change.
// Role and the campus IDs are fixed at registration.
type ContactUpdate struct {
	FullName    string
	PhoneNumber string
	Address     string
}

// Profiles is the repository over the users table.
type Profiles struct {
	repo repository.Repository[*Profile]
	db   *bun.DB
}

// New builds the profile repository on the shared bun DB.
func New(db *bun.DB) *Profiles {
	handlers := repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile {
			return &Profile{}
		},
		GetID: func(record *Profile) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Profile, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	}

	return &Profiles{
		repo: repository.NewRepository[*Profile](db, handlers),
		db:   db,
	}
}

// Init creates the backing table when missing.
func (p *Profiles) Init(ctx context.Context) error {
	if _, err := p.db.NewCreateTable().Model((*Profile)(nil)).IfNotExists().Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create users table")
	}
	return nil
}

// GetByID fetches a profile by its provider subject id.
func (p *Profiles) GetByID(ctx context.Context, id string) (*Profile, error) {
	record, err := p.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile")
	}
	return record, nil
}

// GetByEmail fetches a profile by its unique email.
func (p *Profiles) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	record, err := p.repo.GetByIdentifier(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load profile")
	}
	return record, nil
}

// Register mirrors a freshly created provider identity into the local
// table. Re-registering the same subject id is an upsert, so replays after
// a partial sign-up are harmless.
func (p *Profiles) Register(ctx context.Context, identity session.Identity) (*Profile, error) {
	id, err := uuid.Parse(identity.ID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "identity id is not a valid uuid")
	}

	now := time.Now()
	record := &Profile{
		ID:          id,
		Email:       identity.Email,
		FullName:    identity.Name,
		UserType:    string(identity.Role),
		StudentID:   identity.StudentID,
		StaffID:     identity.StaffID,
		PhoneNumber: identity.PhoneNumber,
		Address:     identity.Address,
		CreatedAt:   &now,
		UpdatedAt:   &now,
	}

	if _, err := p.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("full_name = EXCLUDED.full_name").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to register profile")
	}

	return record, nil
}

// UpdateContact writes the editable columns only. Other columns are left
// untouched no matter what the caller passes.
func (p *Profiles) UpdateContact(ctx context.Context, id string, update ContactUpdate) (*Profile, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "profile id is not a valid uuid")
	}

	now := time.Now()
	record := &Profile{
		ID:          uid,
		FullName:    update.FullName,
		PhoneNumber: update.PhoneNumber,
		Address:     update.Address,
		UpdatedAt:   &now,
	}

	if _, err := p.db.NewUpdate().
		Model(record).
		Column("full_name", "phone_number", "address", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
	}

	return p.GetByID(ctx, id)
}
