package cache

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/AccelByte/extend-community-challenge/pkg/domain"
	"github.com/AccelByte/extend-community-challenge/pkg/repository"
)

func newCacheFixture(t *testing.T) (*InMemoryChallengeCache, *repository.InMemoryChallengeRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	repo := repository.NewInMemoryChallengeRepository()

	challenges := []*domain.Challenge{
		{ID: "collect-1", Name: "Collect 1", Type: domain.ChallengeTypeCollect, TargetAmount: 100, Enabled: true},
		{ID: "collect-2", Name: "Collect 2", Type: domain.ChallengeTypeCollect, TargetAmount: 200, Enabled: true},
		{ID: "trade-1", Name: "Trade 1", Type: domain.ChallengeTypeTrade, TargetAmount: 50, Enabled: true},
	}
	for _, challenge := range challenges {
		if err := repo.CreateChallenge(context.Background(), challenge); err != nil {
			t.Fatalf("CreateChallenge() error = %v", err)
		}
	}

	cache := NewInMemoryChallengeCache(repo, logger)
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	return cache, repo
}

func TestInMemoryChallengeCache_Refresh(t *testing.T) {
	cache, _ := newCacheFixture(t)

	if got := len(cache.GetAllChallenges()); got != 3 {
		t.Errorf("expected 3 challenges in cache, got %d", got)
	}
}

func TestInMemoryChallengeCache_GetChallengeByID(t *testing.T) {
	cache, _ := newCacheFixture(t)

	t.Run("existing challenge", func(t *testing.T) {
		challenge := cache.GetChallengeByID("collect-1")

		if challenge == nil {
			t.Fatal("GetChallengeByID() returned nil for existing challenge")
		}

		if challenge.Name != "Collect 1" {
			t.Errorf("expected name 'Collect 1', got %q", challenge.Name)
		}
	})

	t.Run("non-existing challenge", func(t *testing.T) {
		challenge := cache.GetChallengeByID("nonexistent")

		if challenge != nil {
			t.Errorf("GetChallengeByID() expected nil, got %v", challenge)
		}
	})
}

func TestInMemoryChallengeCache_GetActiveByType(t *testing.T) {
	cache, repo := newCacheFixture(t)
	ctx := context.Background()

	active := cache.GetActiveByType(domain.ChallengeTypeCollect)
	if len(active) != 2 {
		t.Fatalf("expected 2 active collect challenges, got %d", len(active))
	}

	// A claimed challenge drops out after a refresh.
	claimed, err := repo.ClaimCompletion(ctx, "collect-1")
	if err != nil || !claimed {
		t.Fatalf("ClaimCompletion() = %v, %v", claimed, err)
	}
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	active = cache.GetActiveByType(domain.ChallengeTypeCollect)
	if len(active) != 1 {
		t.Fatalf("expected 1 active collect challenge after claim, got %d", len(active))
	}
	if active[0].ID != "collect-2" {
		t.Errorf("expected 'collect-2', got %q", active[0].ID)
	}
}

func TestInMemoryChallengeCache_GetActiveByType_NoMatches(t *testing.T) {
	cache, _ := newCacheFixture(t)

	active := cache.GetActiveByType(domain.ChallengeTypeDonate)
	if len(active) != 0 {
		t.Errorf("expected no donate challenges, got %d", len(active))
	}
}

func TestInMemoryChallengeCache_ConcurrentAccess(t *testing.T) {
	cache, _ := newCacheFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = cache.GetChallengeByID("collect-1")
				_ = cache.GetActiveByType(domain.ChallengeTypeCollect)
				_ = cache.GetAllChallenges()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			if err := cache.Refresh(ctx); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()
}
