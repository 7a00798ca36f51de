package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// CreateDreamInput is what a caller may set on a new dream.
type CreateDreamInput struct {
	Title       string
	Description string
	DreamDate   string
	Mood        model.Mood
	IsLucid     bool
	Tags        []string
}

type DreamService struct {
	dreams   repository.DreamRepository
	tags     repository.TagRepository
	insights repository.InsightRepository
	logger   *slog.Logger
}

func NewDreamService(
	dreams repository.DreamRepository,
	tags repository.TagRepository,
	insights repository.InsightRepository,
	logger *slog.Logger,
) *DreamService {
	return &DreamService{dreams: dreams, tags: tags, insights: insights, logger: logger}
}

// Create validates and stores a dream for ownerID with its tags, creating
// any tag names seen for the first time. Tags are resolved before the dream
// is inserted; if attaching them fails the dream is removed again, so a
// failed create leaves nothing behind for a retry to duplicate.
func (s *DreamService) Create(ctx context.Context, ownerID string, in CreateDreamInput) (*model.Dream, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperror.Unauthenticated()
	}

	dream, err := validateDream(in)
	if err != nil {
		return nil, err
	}
	tagNames, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}
	dream.UserID = ownerID

	dream.Tags = make([]model.Tag, 0, len(tagNames))
	ids := make([]string, 0, len(tagNames))
	for _, name := range tagNames {
		tag, err := s.tags.FindOrCreateTag(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("resolving tag %q: %w", name, err)
		}
		ids = append(ids, tag.ID)
		dream.Tags = append(dream.Tags, *tag)
	}

	if err := s.dreams.CreateDream(ctx, dream); err != nil {
		s.logger.Error("failed to create dream",
			slog.String("userID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating dream: %w", err)
	}

	if len(ids) > 0 {
		if err := s.tags.AttachTags(ctx, dream.ID, ids); err != nil {
			if delErr := s.dreams.DeleteDream(ctx, dream.ID, ownerID); delErr != nil {
				s.logger.Error("failed to remove untagged dream",
					slog.String("id", dream.ID),
					slog.String("error", delErr.Error()),
				)
			}
			return nil, fmt.Errorf("attaching tags: %w", err)
		}
	}

	s.logger.Info("dream created",
		slog.String("id", dream.ID),
		slog.String("userID", ownerID),
		slog.Int("tags", len(tagNames)),
	)
	return dream, nil
}

// Get returns one of the caller's dreams with its tags and insight.
func (s *DreamService) Get(ctx context.Context, ownerID, id string) (*model.Dream, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperror.Unauthenticated()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "dream ID is required")
	}

	dream, err := s.dreams.GetDreamForOwner(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, dream); err != nil {
		return nil, err
	}
	return dream, nil
}

// List returns the caller's dreams, newest first unless filter.Sort says
// otherwise. Limit is clamped to 1..100.
func (s *DreamService) List(ctx context.Context, ownerID string, filter repository.DreamFilter) ([]model.Dream, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperror.Unauthenticated()
	}
	if filter.Mood != "" && !filter.Mood.Valid() {
		return nil, apperror.ValidationFailed("mood", fmt.Sprintf("unknown mood %q", filter.Mood))
	}
	switch filter.Sort {
	case "":
		filter.Sort = repository.SortCreatedDesc
	case repository.SortCreatedDesc, repository.SortCreatedAsc,
		repository.SortDreamDateDesc, repository.SortDreamDateAsc:
	default:
		return nil, apperror.ValidationFailed("sort", fmt.Sprintf("unknown sort %q", filter.Sort))
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultListLimit
	}
	if filter.Limit > MaxListLimit {
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	dreams, err := s.dreams.ListDreams(ctx, ownerID, filter)
	if err != nil {
		s.logger.Error("failed to list dreams", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing dreams: %w", err)
	}
	for i := range dreams {
		if err := s.hydrate(ctx, &dreams[i]); err != nil {
			return nil, err
		}
	}
	return dreams, nil
}

// Delete removes a dream and, through the cascade, its tags and insight.
func (s *DreamService) Delete(ctx context.Context, ownerID, id string) error {
	if strings.TrimSpace(ownerID) == "" {
		return apperror.Unauthenticated()
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "dream ID is required")
	}

	if err := s.dreams.DeleteDream(ctx, id, ownerID); err != nil {
		return err
	}

	s.logger.Info("dream deleted", slog.String("id", id), slog.String("userID", ownerID))
	return nil
}

// ListTags returns every known tag name.
func (s *DreamService) ListTags(ctx context.Context, limit, offset int) ([]model.Tag, error) {
	if limit <= 0 {
		limit = MaxListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	tags, err := s.tags.ListTags(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	return tags, nil
}

func (s *DreamService) hydrate(ctx context.Context, dream *model.Dream) error {
	tags, err := s.tags.ListTagsForDream(ctx, dream.ID)
	if err != nil {
		return fmt.Errorf("loading tags for dream %s: %w", dream.ID, err)
	}
	dream.Tags = tags

	insight, err := s.insights.GetInsightByDreamID(ctx, dream.ID)
	switch {
	case err == nil:
		dream.Insight = insight
	case isNotFound(err):
		dream.Insight = nil
	default:
		return fmt.Errorf("loading insight for dream %s: %w", dream.ID, err)
	}
	return nil
}

func validateDream(in CreateDreamInput) (*model.Dream, error) {
	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, apperror.ValidationFailed("description", "dream description is required")
	}
	if utf8.RuneCountInString(description) > model.MaxDescriptionLength {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", model.MaxDescriptionLength))
	}

	title := strings.TrimSpace(in.Title)
	if utf8.RuneCountInString(title) > model.MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", model.MaxTitleLength))
	}

	date := strings.TrimSpace(in.DreamDate)
	if date == "" {
		return nil, apperror.ValidationFailed("dreamDate", "dream date is required")
	}
	if _, err := time.Parse(model.DreamDateLayout, date); err != nil {
		return nil, apperror.ValidationFailed("dreamDate", "dream date must be formatted YYYY-MM-DD")
	}

	if in.Mood == "" {
		return nil, apperror.ValidationFailed("moodUponWaking", "mood upon waking is required")
	}
	if !in.Mood.Valid() {
		return nil, apperror.ValidationFailed("moodUponWaking", fmt.Sprintf("unknown mood %q", in.Mood))
	}

	return &model.Dream{
		Title:       title,
		Description: description,
		DreamDate:   date,
		Mood:        in.Mood,
		IsLucid:     in.IsLucid,
	}, nil
}

// normalizeTags trims names, drops blanks and repeats, and enforces the
// per-dream caps.
func normalizeTags(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		if utf8.RuneCountInString(name) > model.MaxTagLength {
			return nil, apperror.ValidationFailed("tags",
				fmt.Sprintf("tags must be %d characters or less", model.MaxTagLength))
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if len(out) > model.MaxTagsPerDream {
		return nil, apperror.ValidationFailed("tags",
			fmt.Sprintf("a dream can have at most %d tags", model.MaxTagsPerDream))
	}
	return out, nil
}
