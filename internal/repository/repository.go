package repository

import (
	"context"

	"github.com/sakif/dreams-saver/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Dream list orderings.
const (
	SortCreatedDesc   = "created_at_desc"
	SortCreatedAsc    = "created_at_asc"
	SortDreamDateDesc = "dream_date_desc"
	SortDreamDateAsc  = "dream_date_asc"
)

// DreamFilter narrows ListDreams. Zero values mean "no filter".
type DreamFilter struct {
	Mood  model.Mood
	Lucid *bool
	Sort  string
	ListOptions
}

type DreamRepository interface {
	CreateDream(ctx context.Context, dream *model.Dream) error
	// GetDreamForOwner filters by owner, so a dream owned by someone else is
	// reported as not found.
	GetDreamForOwner(ctx context.Context, id, ownerID string) (*model.Dream, error)
	ListDreams(ctx context.Context, ownerID string, filter DreamFilter) ([]model.Dream, error)
	DeleteDream(ctx context.Context, id, ownerID string) error
}

type TagRepository interface {
	FindOrCreateTag(ctx context.Context, name string) (*model.Tag, error)
	AttachTags(ctx context.Context, dreamID string, tagIDs []string) error
	ListTagsForDream(ctx context.Context, dreamID string) ([]model.Tag, error)
	ListTags(ctx context.Context, opts ListOptions) ([]model.Tag, error)
}

type InsightRepository interface {
	// CreateInsight is a plain insert. A second insight for the same dream
	// returns apperror.ErrConflict.
	CreateInsight(ctx context.Context, insight *model.Insight) error
	GetInsightByDreamID(ctx context.Context, dreamID string) (*model.Insight, error)
}

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	GetAccountByCustomerID(ctx context.Context, customerID string) (*model.Account, error)
	UpdateAccount(ctx context.Context, account *model.Account) error
	// SetInsightsUsed and UpdateAccountEmail touch only their column (and
	// updated_at), so they never overwrite a concurrent tier change.
	SetInsightsUsed(ctx context.Context, id string, used int) error
	UpdateAccountEmail(ctx context.Context, id, email string) error
	BackfillAccountDefaults(ctx context.Context) (int64, error)
}

type BillingEventRepository interface {
	HasProcessedEvent(ctx context.Context, id string) (bool, error)
	RecordEvent(ctx context.Context, event *model.BillingEvent) error
}

// Store is everything a storage backend provides.
type Store interface {
	DreamRepository
	TagRepository
	InsightRepository
	AccountRepository
	BillingEventRepository
	Close() error
}
