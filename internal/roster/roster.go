// Package roster is the only writer of volunteer records. Every mutation
// runs under a per-phone lock and inside an exclusive SQLite transaction,
// so read-check-write sequences stay atomic against concurrent messages
// and against CLI processes sharing the database file.
package roster

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rosterbot/internal/models"
	"rosterbot/internal/storage"
)

// ErrNotFound is returned when the phone has no active record
var ErrNotFound = errors.New("volunteer not found")

// RegisterInput describes one registration request
type RegisterInput struct {
	Phone         string
	Name          string
	Skills        []string
	CurrentRole   string
	PreferredRole string
}

// RegisterResult is the stored record after registration
type RegisterResult struct {
	Volunteer models.Volunteer
	Created   bool
}

type Service struct {
	store *storage.Storage
	locks *LockTable
	log   zerolog.Logger
	now   func() time.Time
}

// NewService creates the mutation layer over store
func NewService(store *storage.Storage, locks *LockTable, log zerolog.Logger) *Service {
	if locks == nil {
		locks = NewLockTable()
	}
	return &Service{
		store: store,
		locks: locks,
		log:   log.With().Str("component", "roster").Logger(),
		now:   time.Now,
	}
}

// WithUserLock runs fn holding the phone's lock, inside an exclusive transaction
func (s *Service) WithUserLock(ctx context.Context, phone string, fn func(q storage.Querier) error) error {
	return s.locks.Do(phone, func() error {
		return s.store.WithExclusiveTx(ctx, fn)
	})
}

// Register creates a record or merges into the existing one. Skills are
// set-unioned, the name is replaced when given, and the current role only
// changes when a non-empty role is supplied.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	var result RegisterResult
	in.Name = strings.TrimSpace(in.Name)

	err := s.WithUserLock(ctx, in.Phone, func(q storage.Querier) error {
		existing, err := storage.GetVolunteer(ctx, q, in.Phone)
		switch {
		case err == nil:
			existing.Skills = models.MergeSkills(existing.Skills, in.Skills)
			if in.Name != "" {
				existing.Name = in.Name
			}
			if role := strings.TrimSpace(in.CurrentRole); role != "" {
				existing.CurrentRole = role
			}
			if role := strings.TrimSpace(in.PreferredRole); role != "" {
				existing.PreferredRole = role
			}
			result = RegisterResult{Volunteer: existing}
		case errors.Is(err, storage.ErrNotFound):
			if err := storage.PurgeArchived(ctx, q, in.Phone); err != nil {
				return err
			}
			name := in.Name
			if name == "" {
				name = models.AnonymousName
			}
			result = RegisterResult{
				Volunteer: models.Volunteer{
					Phone:         in.Phone,
					Name:          name,
					Skills:        models.MergeSkills(nil, in.Skills),
					Available:     true,
					CurrentRole:   strings.TrimSpace(in.CurrentRole),
					PreferredRole: strings.TrimSpace(in.PreferredRole),
				},
				Created: true,
			}
		default:
			return err
		}
		return storage.UpsertVolunteer(ctx, q, result.Volunteer)
	})
	if err != nil {
		return RegisterResult{}, fmt.Errorf("failed to register %s: %w", in.Phone, err)
	}

	s.log.Info().
		Str("phone", in.Phone).
		Bool("created", result.Created).
		Int("skills", len(result.Volunteer.Skills)).
		Msg("Volunteer registered")
	return result, nil
}

// update applies fn to an existing record and stores it
func (s *Service) update(ctx context.Context, phone string, fn func(v *models.Volunteer)) (models.Volunteer, error) {
	var updated models.Volunteer
	err := s.WithUserLock(ctx, phone, func(q storage.Querier) error {
		v, err := storage.GetVolunteer(ctx, q, phone)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		fn(&v)
		updated = v
		return storage.UpsertVolunteer(ctx, q, v)
	})
	return updated, err
}

// UpdateName renames an existing volunteer
func (s *Service) UpdateName(ctx context.Context, phone, name string) (models.Volunteer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Volunteer{}, fmt.Errorf("name must not be empty")
	}
	return s.update(ctx, phone, func(v *models.Volunteer) { v.Name = name })
}

// AddSkills merges skills into an existing record
func (s *Service) AddSkills(ctx context.Context, phone string, skills []string) (models.Volunteer, error) {
	return s.update(ctx, phone, func(v *models.Volunteer) {
		v.Skills = models.MergeSkills(v.Skills, skills)
	})
}

// SetAvailability flips the availability flag
func (s *Service) SetAvailability(ctx context.Context, phone string, available bool) (models.Volunteer, error) {
	return s.update(ctx, phone, func(v *models.Volunteer) { v.Available = available })
}

// Delete archives the record into deleted_volunteers
func (s *Service) Delete(ctx context.Context, phone string) (models.Volunteer, error) {
	var deleted models.Volunteer
	err := s.WithUserLock(ctx, phone, func(q storage.Querier) error {
		v, err := storage.GetVolunteer(ctx, q, phone)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		deleted = v
		return storage.ArchiveVolunteer(ctx, q, v, s.now())
	})
	if err != nil {
		return models.Volunteer{}, err
	}
	s.log.Info().Str("phone", phone).Msg("Volunteer archived")
	return deleted, nil
}

// Get returns the active record for phone, or ErrNotFound
func (s *Service) Get(ctx context.Context, phone string) (models.Volunteer, error) {
	v, err := storage.GetVolunteer(ctx, s.store.DB(), phone)
	if errors.Is(err, storage.ErrNotFound) {
		return v, ErrNotFound
	}
	return v, err
}

// Lookup is Get with a found flag instead of ErrNotFound
func (s *Service) Lookup(ctx context.Context, phone string) (models.Volunteer, bool, error) {
	v, err := s.Get(ctx, phone)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// List returns all active volunteers
func (s *Service) List(ctx context.Context) ([]models.Volunteer, error) {
	return storage.ListVolunteers(ctx, s.store.DB())
}

// ListDeleted returns the archive
func (s *Service) ListDeleted(ctx context.Context) ([]models.DeletedVolunteer, error) {
	return storage.ListDeleted(ctx, s.store.DB())
}
