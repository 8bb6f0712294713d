// internal/membership/service.go
package membership

import (
	"context"
	"io"

	"github.com/google/uuid"

	"shepherd/internal/auth"
	"shepherd/internal/pkg/eventstore"
)

// Service defines the interface for the membership service. Every call is
// confined to scope.ChurchID; writes need the admin or staff role.
type Service interface {
	AddMember(ctx context.Context, scope auth.Scope, in MemberInput) (*Member, error)
	GetMember(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Member, error)
	UpdateMember(ctx context.Context, scope auth.Scope, id uuid.UUID, expectedVersion int, in MemberInput) (*Member, error)
	RemoveMember(ctx context.Context, scope auth.Scope, id uuid.UUID) error
	ListMembers(ctx context.Context, scope auth.Scope, filter MemberFilter) ([]Member, error)

	CreateHousehold(ctx context.Context, scope auth.Scope, in HouseholdInput) (*Household, error)
	GetHousehold(ctx context.Context, scope auth.Scope, id uuid.UUID) (*Household, error)
	AssignHousehold(ctx context.Context, scope auth.Scope, memberID uuid.UUID, householdID *uuid.UUID) (*Member, error)

	ImportMembers(ctx context.Context, scope auth.Scope, src io.Reader) (*ImportResult, error)
	Activity(ctx context.Context, scope auth.Scope, beforeID int64, limit int) ([]eventstore.Event, error)
}
