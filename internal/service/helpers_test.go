package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sakif/dreams-saver/internal/generator"
	"github.com/sakif/dreams-saver/internal/metrics"
	"github.com/sakif/dreams-saver/internal/model"
	"github.com/sakif/dreams-saver/internal/repository"
	"github.com/sakif/dreams-saver/internal/repository/sqlite"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Storage is the real sqlite backend on an in-memory database; only the
// external collaborators are faked by hand.

// fakeGenerator returns a fixed answer and counts calls.
type fakeGenerator struct {
	text  string
	err   error
	calls atomic.Int32
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (*generator.Result, error) {
	g.calls.Add(1)
	if g.err != nil {
		return nil, g.err
	}
	return &generator.Result{Text: g.text, ModelVersion: "test-model"}, nil
}

// barrierGenerator holds every caller until n have arrived, so concurrent
// requests are all past their pre-checks before any of them inserts.
type barrierGenerator struct {
	n       int
	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func newBarrierGenerator(n int) *barrierGenerator {
	return &barrierGenerator{n: n, release: make(chan struct{})}
}

func (g *barrierGenerator) Generate(ctx context.Context, _ string) (*generator.Result, error) {
	g.mu.Lock()
	g.arrived++
	if g.arrived == g.n {
		close(g.release)
	}
	g.mu.Unlock()

	select {
	case <-g.release:
		return &generator.Result{Text: "a concurrent interpretation", ModelVersion: "test-model"}, nil
	case <-time.After(5 * time.Second):
		return nil, errors.New("barrier timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// failingCounter breaks the usage counter write and nothing else.
type failingCounter struct {
	repository.AccountRepository
}

func (failingCounter) SetInsightsUsed(context.Context, string, int) error {
	return errors.New("disk on fire")
}

// interleavedAccounts runs between once, right after the first GetAccount.
// It stands in for a webhook landing between a read and its write.
type interleavedAccounts struct {
	repository.AccountRepository
	between func()
}

func (r *interleavedAccounts) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	a, err := r.AccountRepository.GetAccount(ctx, id)
	if r.between != nil {
		between := r.between
		r.between = nil
		between()
	}
	return a, err
}

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type testEnv struct {
	store    *sqlite.DB
	accounts *AccountService
	dreams   *DreamService
	insights *InsightService
	gen      *fakeGenerator
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newTestStore(t)
	logger := testLogger()
	gen := &fakeGenerator{text: "This dream could represent a longing for freedom."}
	m := metrics.New()
	accounts := NewAccountService(store, logger)

	return &testEnv{
		store:    store,
		accounts: accounts,
		dreams:   NewDreamService(store, store, store, logger),
		insights: NewInsightService(store, accounts, gen, m, logger),
		gen:      gen,
		metrics:  m,
	}
}

// seedAccount creates an account with the given counters.
func seedAccount(t *testing.T, store *sqlite.DB, id string, premium bool, used, limit int) {
	t.Helper()
	err := store.CreateAccount(context.Background(), &model.Account{
		ID:           id,
		Email:        id + "@example.com",
		IsPremium:    premium,
		InsightsUsed: model.IntPtr(used),
		InsightLimit: model.IntPtr(limit),
	})
	if err != nil {
		t.Fatalf("seeding account: %v", err)
	}
}

func seedDream(t *testing.T, svc *DreamService, owner string, tags ...string) *model.Dream {
	t.Helper()
	d, err := svc.Create(context.Background(), owner, CreateDreamInput{
		Description: "I was flying over mountains",
		DreamDate:   "2024-03-01",
		Mood:        model.MoodHappy,
		Tags:        tags,
	})
	if err != nil {
		t.Fatalf("seeding dream: %v", err)
	}
	return d
}

func mustAccount(t *testing.T, store *sqlite.DB, id string) *model.Account {
	t.Helper()
	a, err := store.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount(%s): %v", id, err)
	}
	return a
}

func scrapeMetrics(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}
