package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/generator"
	"github.com/sakif/dreams-saver/internal/metrics"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
)

// InsightService runs the gated generation workflow for a single dream.
type InsightService struct {
	dreams   repository.DreamRepository
	tags     repository.TagRepository
	insights repository.InsightRepository
	accounts *AccountService
	gen      generator.Generator
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewInsightService(
	store repository.Store,
	accounts *AccountService,
	gen generator.Generator,
	m *metrics.Metrics,
	logger *slog.Logger,
) *InsightService {
	return &InsightService{
		dreams:   store,
		tags:     store,
		insights: store,
		accounts: accounts,
		gen:      gen,
		metrics:  m,
		logger:   logger,
	}
}

// RequestInsight generates and stores the interpretation of one of the
// caller's dreams.
//
// Checks run in a fixed order and the first failure wins:
//
//  1. no caller: Unauthenticated
//  2. dream missing or owned by someone else: NotFound
//  3. dream already interpreted: Conflict
//  4. no account row: ProfileMissing
//  5. free account at its limit: QuotaExceeded
//
// The generator is called once; any error or empty text is
// GenerationFailed and is not retried here. The insight is inserted before
// the counter is touched, so a failed increment leaves the user with their
// insight and an undebited quota. Two requests racing past step 3 are
// settled by the unique dream_id on insights: the loser gets Conflict.
func (s *InsightService) RequestInsight(ctx context.Context, callerID, dreamID string) (insight *model.Insight, err error) {
	defer func() { s.metrics.InsightOutcome(outcomeOf(err)) }()

	if strings.TrimSpace(callerID) == "" {
		return nil, apperror.Unauthenticated()
	}
	dreamID = strings.TrimSpace(dreamID)
	if dreamID == "" {
		return nil, apperror.NotFound("dream", dreamID)
	}

	dream, err := s.dreams.GetDreamForOwner(ctx, dreamID, callerID)
	if err != nil {
		return nil, err
	}

	switch _, err := s.insights.GetInsightByDreamID(ctx, dreamID); {
	case err == nil:
		return nil, apperror.Conflict("insight for dream", dreamID)
	case !isNotFound(err):
		return nil, fmt.Errorf("checking existing insight: %w", err)
	}

	account, err := s.accounts.Get(ctx, callerID)
	if err != nil {
		if isNotFound(err) {
			s.logger.Error("insight requested without an account", slog.String("userID", callerID))
			return nil, apperror.ProfileMissing(callerID)
		}
		return nil, fmt.Errorf("loading account: %w", err)
	}
	if !account.CanRequestInsight() {
		return nil, apperror.QuotaExceeded(account.UsedCount(), account.Limit())
	}

	tags, err := s.tags.ListTagsForDream(ctx, dreamID)
	if err != nil {
		return nil, fmt.Errorf("loading tags: %w", err)
	}
	dream.Tags = tags

	prompt := generator.BuildPrompt(generator.PromptInput{
		Description: dream.Description,
		Mood:        string(dream.Mood),
		IsLucid:     dream.IsLucid,
		Tags:        dream.TagNames(),
	})

	start := time.Now()
	result, err := s.gen.Generate(ctx, prompt)
	s.metrics.ObserveGeneration(time.Since(start))
	if err == nil && (result == nil || strings.TrimSpace(result.Text) == "") {
		err = generator.ErrEmptyResponse
	}
	if err != nil {
		s.logger.Error("insight generation failed",
			slog.String("dreamID", dreamID),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, apperror.GenerationFailed(err)
	}

	insight = &model.Insight{
		DreamID:      dreamID,
		Text:         strings.TrimSpace(result.Text),
		ModelVersion: result.ModelVersion,
	}
	if err := s.insights.CreateInsight(ctx, insight); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Warn("concurrent insight request lost the race", slog.String("dreamID", dreamID))
			return nil, err
		}
		return nil, fmt.Errorf("saving insight: %w", err)
	}

	if !account.IsPremium {
		if err := s.accounts.IncrementUsage(ctx, callerID); err != nil {
			s.logger.Error("failed to increment insight usage",
				slog.String("userID", callerID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("insight created",
		slog.String("dreamID", dreamID),
		slog.String("userID", callerID),
		slog.String("model", insight.ModelVersion),
	)
	return insight, nil
}

// Get returns the stored insight for one of the caller's dreams.
func (s *InsightService) Get(ctx context.Context, callerID, dreamID string) (*model.Insight, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, apperror.Unauthenticated()
	}
	if _, err := s.dreams.GetDreamForOwner(ctx, dreamID, callerID); err != nil {
		return nil, err
	}
	return s.insights.GetInsightByDreamID(ctx, dreamID)
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCreated
	case errors.Is(err, apperror.ErrUnauthenticated):
		return metrics.OutcomeUnauthenticated
	case errors.Is(err, apperror.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, apperror.ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, apperror.ErrQuotaExceeded):
		return metrics.OutcomeQuotaExceeded
	case errors.Is(err, apperror.ErrGenerationFailed):
		return metrics.OutcomeGenerationFailed
	}
	return metrics.OutcomeError
}
