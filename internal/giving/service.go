// internal/giving/service.go
package giving

import (
	"context"
	"io"

	"github.com/google/uuid"

	"shepherd/internal/analytics"
	"shepherd/internal/auth"
)

// Service defines the interface for recording gifts. Giving is confidential:
// every call needs the admin or staff role.
type Service interface {
	RecordGift(ctx context.Context, scope auth.Scope, in GiftInput) (*analytics.GivingRecord, error)
	ListGifts(ctx context.Context, scope auth.Scope, filter GiftFilter) ([]analytics.GivingRecord, error)
	DeleteGift(ctx context.Context, scope auth.Scope, id uuid.UUID) error
	ImportGiving(ctx context.Context, scope auth.Scope, src io.Reader) (*ImportResult, error)
}

// Invalidator drops cached reports after the church's records change.
type Invalidator interface {
	Invalidate(ctx context.Context, churchID uuid.UUID) error
}
