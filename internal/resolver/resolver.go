package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/vhvplatform/go-notification-engine/internal/domain"
	"github.com/vhvplatform/go-notification-engine/internal/rules"
)

// Directory is the read-only view of practice staff and clients
type Directory interface {
	UsersByRoles(ctx context.Context, roles []string) ([]domain.User, error)
	UsersByIDs(ctx context.Context, ids []string) ([]domain.User, error)
	ActiveSupervisorOf(ctx context.Context, therapistID string) (*domain.User, error)
	ClientByID(ctx context.Context, id string) (*domain.Client, error)
}

// Resolver turns recipient sources into concrete recipients
type Resolver struct {
	directory Directory
}

// New creates a resolver over the directory
func New(directory Directory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve evaluates every source against the payload and returns the union,
// deduplicated by recipient id in first-seen order. Any storage error
// discards the whole set.
func (r *Resolver) Resolve(ctx context.Context, sources []rules.Source, payload map[string]any) ([]domain.Recipient, error) {
	set := newRecipientSet()

	for _, src := range sources {
		var err error
		switch s := src.(type) {
		case rules.RoleSource:
			err = r.addUsers(set, func() ([]domain.User, error) {
				return r.directory.UsersByRoles(ctx, s.Roles)
			})
		case rules.UserSource:
			err = r.addUsers(set, func() ([]domain.User, error) {
				return r.directory.UsersByIDs(ctx, s.IDs)
			})
		case rules.AssignedTherapistSource:
			id, ok := rules.TherapistID(payload, s.Field)
			if !ok {
				continue
			}
			err = r.addUsers(set, func() ([]domain.User, error) {
				return r.directory.UsersByIDs(ctx, []string{id})
			})
		case rules.SupervisorSource:
			err = r.addSupervisor(ctx, set, s, payload)
		case rules.ClientSource:
			err = r.addClient(ctx, set, s, payload)
		default:
			err = fmt.Errorf("unsupported recipient source %T", src)
		}
		if err != nil {
			return nil, err
		}
	}

	return set.items, nil
}

func (r *Resolver) addUsers(set *recipientSet, load func() ([]domain.User, error)) error {
	users, err := load()
	if err != nil {
		return err
	}
	for _, u := range users {
		set.add(domain.NewStaffRecipient(u))
	}
	return nil
}

func (r *Resolver) addSupervisor(ctx context.Context, set *recipientSet, s rules.SupervisorSource, payload map[string]any) error {
	therapistID, ok := rules.TherapistID(payload, s.TherapistField)
	if !ok {
		return nil
	}
	sup, err := r.directory.ActiveSupervisorOf(ctx, therapistID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("supervisor of %s: %w", therapistID, err)
	}
	set.add(domain.NewStaffRecipient(*sup))
	return nil
}

func (r *Resolver) addClient(ctx context.Context, set *recipientSet, s rules.ClientSource, payload map[string]any) error {
	field := s.Field
	if field == "" {
		field = rules.DefaultClientField
	}
	clientID, ok := rules.LookupString(payload, field)
	if !ok {
		return nil
	}
	client, err := r.directory.ClientByID(ctx, clientID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("client %s: %w", clientID, err)
	}
	if rec, ok := domain.NewClientRecipient(*client); ok {
		set.add(rec)
	}
	return nil
}

type recipientSet struct {
	seen  map[string]struct{}
	items []domain.Recipient
}

func newRecipientSet() *recipientSet {
	return &recipientSet{seen: make(map[string]struct{})}
}

func (s *recipientSet) add(r domain.Recipient) {
	if r == nil || r.ID() == "" {
		return
	}
	if _, dup := s.seen[r.ID()]; dup {
		return
	}
	s.seen[r.ID()] = struct{}{}
	s.items = append(s.items, r)
}
