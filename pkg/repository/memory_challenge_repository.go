package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AccelByte/extend-community-challenge/pkg/domain"
	"github.com/AccelByte/extend-community-challenge/pkg/errors"
)

// memoryChallenge bundles one challenge with its ledger and bookkeeping.
// Each challenge carries its own mutex so the increment-and-compare critical
// section is serialized per challenge, never process-wide: reports for
// different challenges run concurrently, mirroring the row-lock semantics of
// the PostgreSQL implementation.
type memoryChallenge struct {
	mu        sync.Mutex
	challenge domain.Challenge
	entries   map[string]*memoryEntry       // contributor ID -> ledger entry
	dedup     map[string]time.Time          // contributor ID + "\x00" + key -> reported at
	grants    map[string]domain.RewardGrant // contributor ID -> grant record
	failures  map[string]domain.GrantFailure
}

type memoryEntry struct {
	entry domain.ContributionEntry
	seq   uint64 // arrival order, breaks equal-timestamp leaderboard ties
}

// InMemoryChallengeRepository is a complete in-memory implementation of
// ChallengeRepository. Unlike MockChallengeRepository (testify/mock), it
// enforces the same atomicity and status-transition semantics as the
// PostgreSQL implementation and needs no setup.
//
// Use this for tests and local development. It is not durable.
type InMemoryChallengeRepository struct {
	mu         sync.RWMutex // guards the challenge map and settings
	challenges map[string]*memoryChallenge
	settings   domain.ChallengeSettings
	seq        uint64 // protected by each challenge's mu via nextSeq
	seqMu      sync.Mutex
}

// NewInMemoryChallengeRepository creates an empty in-memory repository with
// default settings (enabled, no announcement channel).
func NewInMemoryChallengeRepository() *InMemoryChallengeRepository {
	return &InMemoryChallengeRepository{
		challenges: make(map[string]*memoryChallenge),
		settings: domain.ChallengeSettings{
			Enabled:   true,
			UpdatedAt: time.Now().UTC(),
		},
	}
}

func (r *InMemoryChallengeRepository) nextSeq() uint64 {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	r.seq++
	return r.seq
}

func (r *InMemoryChallengeRepository) get(challengeID string) *memoryChallenge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.challenges[challengeID]
}

// CreateChallenge inserts a new challenge definition.
func (r *InMemoryChallengeRepository) CreateChallenge(ctx context.Context, challenge *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.challenges[challenge.ID]; exists {
		return errors.ErrValidationFailed("id", "challenge ID already exists")
	}

	stored := *challenge
	stored.Status = domain.ChallengeStatusActive
	stored.CurrentAmount = 0
	stored.CompletedAt = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	r.challenges[challenge.ID] = &memoryChallenge{
		challenge: stored,
		entries:   make(map[string]*memoryEntry),
		dedup:     make(map[string]time.Time),
		grants:    make(map[string]domain.RewardGrant),
		failures:  make(map[string]domain.GrantFailure),
	}

	return nil
}

// UpdateChallenge updates the mutable definition fields of a challenge.
func (r *InMemoryChallengeRepository) UpdateChallenge(ctx context.Context, challenge *domain.Challenge) error {
	mc := r.get(challenge.ID)
	if mc == nil {
		return errors.ErrChallengeNotFound(challenge.ID)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.challenge.Name = challenge.Name
	mc.challenge.Description = challenge.Description
	mc.challenge.Type = challenge.Type
	mc.challenge.TargetAmount = challenge.TargetAmount
	mc.challenge.RewardItem = challenge.RewardItem
	mc.challenge.RewardQuantity = challenge.RewardQuantity
	mc.challenge.Enabled = challenge.Enabled

	return nil
}

// DeleteChallenge removes a challenge and everything keyed by it.
func (r *InMemoryChallengeRepository) DeleteChallenge(ctx context.Context, challengeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.challenges[challengeID]; !exists {
		return errors.ErrChallengeNotFound(challengeID)
	}
	delete(r.challenges, challengeID)

	return nil
}

// GetChallenge retrieves a challenge by ID. Returns nil if it does not exist.
func (r *InMemoryChallengeRepository) GetChallenge(ctx context.Context, challengeID string) (*domain.Challenge, error) {
	mc := r.get(challengeID)
	if mc == nil {
		return nil, nil
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	snapshot := mc.challenge
	return &snapshot, nil
}

// ListChallenges retrieves all challenges, newest first.
func (r *InMemoryChallengeRepository) ListChallenges(ctx context.Context) ([]*domain.Challenge, error) {
	return r.list(func(c *domain.Challenge) bool { return true }), nil
}

// ListActiveChallenges retrieves enabled challenges that have not completed.
func (r *InMemoryChallengeRepository) ListActiveChallenges(ctx context.Context) ([]*domain.Challenge, error) {
	return r.list(func(c *domain.Challenge) bool {
		return c.Enabled && c.Status != domain.ChallengeStatusCompleted
	}), nil
}

// ListActiveByType retrieves enabled, active challenges of one type.
func (r *InMemoryChallengeRepository) ListActiveByType(ctx context.Context, challengeType domain.ChallengeType) ([]*domain.Challenge, error) {
	return r.list(func(c *domain.Challenge) bool {
		return c.Type == challengeType && c.IsActive()
	}), nil
}

func (r *InMemoryChallengeRepository) list(keep func(*domain.Challenge) bool) []*domain.Challenge {
	r.mu.RLock()
	all := make([]*memoryChallenge, 0, len(r.challenges))
	for _, mc := range r.challenges {
		all = append(all, mc)
	}
	r.mu.RUnlock()

	results := make([]*domain.Challenge, 0, len(all))
	for _, mc := range all {
		mc.mu.Lock()
		snapshot := mc.challenge
		mc.mu.Unlock()
		if keep(&snapshot) {
			c := snapshot
			results = append(results, &c)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})

	return results
}

// SetEnabled toggles a challenge's visibility.
func (r *InMemoryChallengeRepository) SetEnabled(ctx context.Context, challengeID string, enabled bool) error {
	mc := r.get(challengeID)
	if mc == nil {
		return errors.ErrChallengeNotFound(challengeID)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.challenge.Enabled = enabled

	return nil
}

// ResetChallenge clears all progress state and returns the challenge to active.
func (r *InMemoryChallengeRepository) ResetChallenge(ctx context.Context, challengeID string) error {
	mc := r.get(challengeID)
	if mc == nil {
		return errors.ErrChallengeNotFound(challengeID)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.challenge.CurrentAmount = 0
	mc.challenge.Status = domain.ChallengeStatusActive
	mc.challenge.CompletedAt = nil
	mc.entries = make(map[string]*memoryEntry)
	mc.dedup = make(map[string]time.Time)
	mc.grants = make(map[string]domain.RewardGrant)
	mc.failures = make(map[string]domain.GrantFailure)

	return nil
}

// GetSettings returns the settings singleton.
func (r *InMemoryChallengeRepository) GetSettings(ctx context.Context) (*domain.ChallengeSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := r.settings
	return &snapshot, nil
}

// UpdateSettings replaces the settings singleton.
func (r *InMemoryChallengeRepository) UpdateSettings(ctx context.Context, settings *domain.ChallengeSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings = *settings
	r.settings.UpdatedAt = time.Now().UTC()

	return nil
}

// ReportProgress atomically applies one progress contribution under the
// challenge's own mutex: dedup check, counter increment, ledger upsert and
// threshold comparison all happen in one critical section.
func (r *InMemoryChallengeRepository) ReportProgress(ctx context.Context, report ProgressReport) (*domain.ReportResult, error) {
	mc := r.get(report.ChallengeID)
	if mc == nil {
		return nil, errors.ErrChallengeNotFound(report.ChallengeID)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if !mc.challenge.Enabled {
		return nil, errors.ErrChallengeDisabled(report.ChallengeID)
	}
	if mc.challenge.Status != domain.ChallengeStatusActive {
		return nil, errors.ErrChallengeNotActive(report.ChallengeID)
	}

	if report.IdempotencyKey != "" {
		dedupKey := report.ContributorID + "\x00" + report.IdempotencyKey
		if _, seen := mc.dedup[dedupKey]; seen {
			return &domain.ReportResult{
				ChallengeID: report.ChallengeID,
				Accepted:    false,
				Duplicate:   true,
			}, nil
		}
		mc.dedup[dedupKey] = time.Now().UTC()
	}

	now := time.Now().UTC()
	entry, exists := mc.entries[report.ContributorID]
	if !exists {
		entry = &memoryEntry{
			entry: domain.ContributionEntry{
				ChallengeID:        report.ChallengeID,
				ContributorID:      report.ContributorID,
				FirstContributedAt: now,
			},
			seq: r.nextSeq(),
		}
		mc.entries[report.ContributorID] = entry
	}
	entry.entry.Amount += report.Amount
	entry.entry.UpdatedAt = now

	previous := mc.challenge.CurrentAmount
	mc.challenge.CurrentAmount += report.Amount

	return &domain.ReportResult{
		ChallengeID:      report.ChallengeID,
		Accepted:         true,
		NewTotal:         mc.challenge.CurrentAmount,
		CrossedThreshold: mc.challenge.CurrentAmount >= mc.challenge.TargetAmount && previous < mc.challenge.TargetAmount,
	}, nil
}

// PurgeDedupKeysBefore deletes idempotency keys recorded before cutoff.
func (r *InMemoryChallengeRepository) PurgeDedupKeysBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.RLock()
	all := make([]*memoryChallenge, 0, len(r.challenges))
	for _, mc := range r.challenges {
		all = append(all, mc)
	}
	r.mu.RUnlock()

	var purged int64
	for _, mc := range all {
		mc.mu.Lock()
		for key, reportedAt := range mc.dedup {
			if reportedAt.Before(cutoff) {
				delete(mc.dedup, key)
				purged++
			}
		}
		mc.mu.Unlock()
	}

	return purged, nil
}

// ClaimCompletion attempts the compare-and-set active -> completing.
// A missing challenge is a failed claim, not an error, matching the
// zero-rows-affected behavior of the PostgreSQL implementation.
func (r *InMemoryChallengeRepository) ClaimCompletion(ctx context.Context, challengeID string) (bool, error) {
	mc := r.get(challengeID)
	if mc == nil {
		return false, nil
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.challenge.Status != domain.ChallengeStatusActive {
		return false, nil
	}
	mc.challenge.Status = domain.ChallengeStatusCompleting

	return true, nil
}

// MarkCompleted performs the compare-and-set completing -> completed.
func (r *InMemoryChallengeRepository) MarkCompleted(ctx context.Context, challengeID string) error {
	mc := r.get(challengeID)
	if mc == nil {
		return errors.ErrChallengeNotFound(challengeID)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.challenge.Status != domain.ChallengeStatusCompleting {
		return errors.ErrInvalidStatus(challengeID, string(domain.ChallengeStatusCompleting))
	}
	now := time.Now().UTC()
	mc.challenge.Status = domain.ChallengeStatusCompleted
	mc.challenge.CompletedAt = &now

	return nil
}

// ListCompleting retrieves challenges stuck in completing status.
func (r *InMemoryChallengeRepository) ListCompleting(ctx context.Context) ([]*domain.Challenge, error) {
	return r.list(func(c *domain.Challenge) bool {
		return c.Status == domain.ChallengeStatusCompleting
	}), nil
}

// ListContributions retrieves the full ledger for a challenge in leaderboard order.
func (r *InMemoryChallengeRepository) ListContributions(ctx context.Context, challengeID string) ([]*domain.ContributionEntry, error) {
	return r.listContributions(challengeID, 0)
}

// TopContributions retrieves the first limit rows of the leaderboard.
func (r *InMemoryChallengeRepository) TopContributions(ctx context.Context, challengeID string, limit int) ([]*domain.ContributionEntry, error) {
	return r.listContributions(challengeID, limit)
}

func (r *InMemoryChallengeRepository) listContributions(challengeID string, limit int) ([]*domain.ContributionEntry, error) {
	mc := r.get(challengeID)
	if mc == nil {
		return nil, errors.ErrChallengeNotFound(challengeID)
	}

	mc.mu.Lock()
	ranked := make([]*memoryEntry, 0, len(mc.entries))
	for _, entry := range mc.entries {
		snapshot := *entry
		ranked = append(ranked, &snapshot)
	}
	mc.mu.Unlock()

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].entry.Amount != ranked[j].entry.Amount {
			return ranked[i].entry.Amount > ranked[j].entry.Amount
		}
		if !ranked[i].entry.FirstContributedAt.Equal(ranked[j].entry.FirstContributedAt) {
			return ranked[i].entry.FirstContributedAt.Before(ranked[j].entry.FirstContributedAt)
		}
		return ranked[i].seq < ranked[j].seq
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	entries := make([]*domain.ContributionEntry, len(ranked))
	for i, entry := range ranked {
		e := entry.entry
		entries[i] = &e
	}

	return entries, nil
}

// HasGrant reports whether a reward grant is already recorded for the contributor.
func (r *InMemoryChallengeRepository) HasGrant(ctx context.Context, challengeID, contributorID string) (bool, error) {
	mc := r.get(challengeID)
	if mc == nil {
		return false, errors.ErrChallengeNotFound(challengeID)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	_, exists := mc.grants[contributorID]
	return exists, nil
}

// RecordGrant durably records an issued reward.
func (r *InMemoryChallengeRepository) RecordGrant(ctx context.Context, grant *domain.RewardGrant) (bool, error) {
	mc := r.get(grant.ChallengeID)
	if mc == nil {
		return false, errors.ErrChallengeNotFound(grant.ChallengeID)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.grants[grant.ContributorID]; exists {
		return false, nil
	}

	stored := *grant
	if stored.GrantedAt.IsZero() {
		stored.GrantedAt = time.Now().UTC()
	}
	mc.grants[grant.ContributorID] = stored

	return true, nil
}

// RecordGrantFailure records a contributor whose dispatch exhausted all retries.
func (r *InMemoryChallengeRepository) RecordGrantFailure(ctx context.Context, failure *domain.GrantFailure) error {
	mc := r.get(failure.ChallengeID)
	if mc == nil {
		return errors.ErrChallengeNotFound(failure.ChallengeID)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	stored := *failure
	if stored.FailedAt.IsZero() {
		stored.FailedAt = time.Now().UTC()
	}
	mc.failures[failure.ContributorID] = stored

	return nil
}

// ListGrantFailures retrieves recorded dispatch failures for a challenge.
func (r *InMemoryChallengeRepository) ListGrantFailures(ctx context.Context, challengeID string) ([]*domain.GrantFailure, error) {
	mc := r.get(challengeID)
	if mc == nil {
		return nil, errors.ErrChallengeNotFound(challengeID)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	failures := make([]*domain.GrantFailure, 0, len(mc.failures))
	for _, failure := range mc.failures {
		f := failure
		failures = append(failures, &f)
	}

	sort.Slice(failures, func(i, j int) bool {
		if !failures[i].FailedAt.Equal(failures[j].FailedAt) {
			return failures[i].FailedAt.After(failures[j].FailedAt)
		}
		return failures[i].ContributorID < failures[j].ContributorID
	})

	return failures, nil
}
