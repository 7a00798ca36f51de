package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sakif/dreams-saver/internal/apperror"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
)

// =========================================================================
// INSIGHT TESTS
// =========================================================================

func TestCreateInsight(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDream(t, db, "alice", "2024-01-01", model.MoodHappy, false)

	in := &model.Insight{DreamID: d.ID, Text: "Flight could represent freedom.", ModelVersion: "gemini-1.5-pro"}
	if err := db.CreateInsight(ctx, in); err != nil {
		t.Fatalf("CreateInsight() error = %v", err)
	}
	if in.ID == "" {
		t.Error("CreateInsight() did not set ID")
	}

	found, err := db.GetInsightByDreamID(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetInsightByDreamID() error = %v", err)
	}
	if found.Text != in.Text || found.ModelVersion != "gemini-1.5-pro" {
		t.Errorf("GetInsightByDreamID() = %+v, want text and version preserved", found)
	}
}

func TestCreateInsight_SecondInsightConflicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDream(t, db, "alice", "2024-01-01", model.MoodHappy, false)

	if err := db.CreateInsight(ctx, &model.Insight{DreamID: d.ID, Text: "first"}); err != nil {
		t.Fatalf("first CreateInsight() error = %v", err)
	}
	err := db.CreateInsight(ctx, &model.Insight{DreamID: d.ID, Text: "second"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second CreateInsight() error = %v, want ErrConflict", err)
	}

	found, _ := db.GetInsightByDreamID(ctx, d.ID)
	if found.Text != "first" {
		t.Errorf("stored insight = %q, the first insert must win", found.Text)
	}
}

func TestCreateInsight_ConcurrentInsertsKeepOneRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := createTestDream(t, db, "alice", "2024-01-01", model.MoodHappy, false)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.CreateInsight(ctx, &model.Insight{DreamID: d.ID, Text: "text"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, apperror.ErrConflict):
				conflicts++
			default:
				t.Errorf("CreateInsight() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
	if conflicts != workers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, workers-1)
	}
}

// =========================================================================
// TAG TESTS
// =========================================================================

func TestFindOrCreateTag_Deduplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.FindOrCreateTag(ctx, "flying")
	if err != nil {
		t.Fatalf("FindOrCreateTag() error = %v", err)
	}
	second, err := db.FindOrCreateTag(ctx, "flying")
	if err != nil {
		t.Fatalf("FindOrCreateTag() second call error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("FindOrCreateTag() created two tags for one name: %s, %s", first.ID, second.ID)
	}

	all, err := db.ListTags(ctx, repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListTags() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("ListTags() returned %d tags, want 1", len(all))
	}
}

func TestAttachTags_SharedAcrossDreams(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d1 := createTestDream(t, db, "alice", "2024-01-01", model.MoodHappy, false)
	d2 := createTestDream(t, db, "bob", "2024-01-02", model.MoodCalm, false)

	flying, _ := db.FindOrCreateTag(ctx, "flying")
	water, _ := db.FindOrCreateTag(ctx, "water")

	if err := db.AttachTags(ctx, d1.ID, []string{water.ID, flying.ID}); err != nil {
		t.Fatalf("AttachTags() error = %v", err)
	}
	if err := db.AttachTags(ctx, d2.ID, []string{flying.ID}); err != nil {
		t.Fatalf("AttachTags() error = %v", err)
	}
	// Attaching again is a no-op.
	if err := db.AttachTags(ctx, d2.ID, []string{flying.ID}); err != nil {
		t.Fatalf("AttachTags() repeat error = %v", err)
	}

	tags, err := db.ListTagsForDream(ctx, d1.ID)
	if err != nil {
		t.Fatalf("ListTagsForDream() error = %v", err)
	}
	if len(tags) != 2 || tags[0].Name != "flying" || tags[1].Name != "water" {
		t.Errorf("ListTagsForDream(d1) = %+v, want [flying water]", tags)
	}

	tags, _ = db.ListTagsForDream(ctx, d2.ID)
	if len(tags) != 1 {
		t.Errorf("ListTagsForDream(d2) returned %d tags, want 1", len(tags))
	}
}
