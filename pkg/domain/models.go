package domain

import "time"

// ChallengeType defines which player action contributes progress to a challenge.
type ChallengeType string

const (
	// ChallengeTypeCollect counts items gathered from the world.
	ChallengeTypeCollect ChallengeType = "collect"

	// ChallengeTypeTrade counts completed player-to-player trades.
	ChallengeTypeTrade ChallengeType = "trade"

	// ChallengeTypeCraft counts items crafted at a workbench.
	ChallengeTypeCraft ChallengeType = "craft"

	// ChallengeTypeCatch counts creatures caught.
	ChallengeTypeCatch ChallengeType = "catch"

	// ChallengeTypeDonate counts items donated to the community pool.
	ChallengeTypeDonate ChallengeType = "donate"
)

// IsValid returns true if the challenge type is a valid type.
func (t ChallengeType) IsValid() bool {
	switch t {
	case ChallengeTypeCollect, ChallengeTypeTrade, ChallengeTypeCraft, ChallengeTypeCatch, ChallengeTypeDonate:
		return true
	default:
		return false
	}
}

// ChallengeStatus represents the lifecycle state of a challenge.
//
// Transitions only move forward:
//
//	active --[threshold crossed]--> completing --[workflow done]--> completed
//
// The single exception is an administrative reset, which clears progress and
// returns the challenge to active.
type ChallengeStatus string

const (
	// ChallengeStatusActive indicates the challenge is accepting progress reports.
	ChallengeStatusActive ChallengeStatus = "active"

	// ChallengeStatusCompleting indicates the target was reached and the
	// completion workflow (rewards + announcement) is running. Entering this
	// status is the exactly-once claim: only one threshold-crossing report
	// can move a challenge out of active.
	ChallengeStatusCompleting ChallengeStatus = "completing"

	// ChallengeStatusCompleted indicates rewards were distributed and the
	// completion was announced. No further writes are accepted.
	ChallengeStatusCompleted ChallengeStatus = "completed"
)

// IsValid returns true if the status is a valid challenge status.
func (s ChallengeStatus) IsValid() bool {
	switch s {
	case ChallengeStatusActive, ChallengeStatusCompleting, ChallengeStatusCompleted:
		return true
	default:
		return false
	}
}

// ChallengeSettings is the system-wide configuration singleton.
// Stored as a single row and read on demand so multiple instances stay consistent.
type ChallengeSettings struct {
	// Enabled is the master switch. When false, all challenges are hidden
	// from players and completion announcements are suppressed.
	Enabled bool `json:"enabled" db:"enabled"`

	// AnnouncementChannelID is where completion notices are posted.
	// Empty disables announcements without disabling challenges.
	AnnouncementChannelID string `json:"announcement_channel_id" db:"announcement_channel_id"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Challenge represents a single cooperative, server-wide goal.
// Every player's contributions accumulate into one shared counter; when the
// counter reaches TargetAmount the challenge completes for everyone at once.
type Challenge struct {
	ID          string        `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description string        `json:"description" db:"description"`
	Type        ChallengeType `json:"type" db:"challenge_type"`

	// TargetAmount is the community-wide total required to complete.
	TargetAmount int64 `json:"target_amount" db:"target_amount"`

	// RewardItem and RewardQuantity describe what each contributor receives
	// on completion. A quantity of 0 means no reward is distributed.
	RewardItem     string `json:"reward_item" db:"reward_item"`
	RewardQuantity int    `json:"reward_quantity" db:"reward_quantity"`

	// Enabled toggles visibility without deleting the challenge.
	Enabled bool `json:"enabled" db:"enabled"`

	Status ChallengeStatus `json:"status" db:"status"`

	// CurrentAmount is the shared progress counter. Monotonically
	// non-decreasing while the challenge is active; frozen afterwards.
	CurrentAmount int64 `json:"current_amount" db:"current_amount"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// IsActive returns true if the challenge currently accepts progress reports.
func (c *Challenge) IsActive() bool {
	return c.Enabled && c.Status == ChallengeStatusActive
}

// IsCompleted returns true if the completion workflow has finished.
func (c *Challenge) IsCompleted() bool {
	return c.Status == ChallengeStatusCompleted
}

// Remaining returns how much progress is still needed to reach the target.
// Returns 0 once the target has been reached or exceeded.
func (c *Challenge) Remaining() int64 {
	if c.CurrentAmount >= c.TargetAmount {
		return 0
	}
	return c.TargetAmount - c.CurrentAmount
}

// HasReward returns true if completing the challenge distributes a reward.
func (c *Challenge) HasReward() bool {
	return c.RewardItem != "" && c.RewardQuantity > 0
}

// ContributionEntry tracks one contributor's cumulative amount toward one
// challenge. Rows are lazily initialized on first contribution.
//
// Invariant: for every challenge, the sum of its entries' Amount values equals
// the challenge's CurrentAmount at every observable point.
type ContributionEntry struct {
	ChallengeID   string `json:"challenge_id" db:"challenge_id"`
	ContributorID string `json:"contributor_id" db:"contributor_id"`
	Amount        int64  `json:"amount" db:"amount"`

	// FirstContributedAt breaks leaderboard ties: equal amounts rank the
	// earlier first-time contributor higher.
	FirstContributedAt time.Time `json:"first_contributed_at" db:"first_contributed_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}

// EventReport is the ephemeral input describing one progress-contributing
// game event. It is validated and folded into the counters, never stored.
//
// Exactly one of ChallengeID or Type should be set: a report with a
// ChallengeID targets that challenge, a report with only a Type fans out to
// every enabled active challenge of that type.
type EventReport struct {
	ChallengeID   string        `json:"challenge_id,omitempty"`
	Type          ChallengeType `json:"type,omitempty"`
	ContributorID string        `json:"contributor_id"`
	Amount        int64         `json:"amount"`

	// IdempotencyKey identifies the originating game action. Reports
	// repeating a key already seen for the same (challenge, contributor)
	// pair are absorbed without changing any counter. Empty disables
	// deduplication for this report.
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ReportResult describes the outcome of a single progress report.
type ReportResult struct {
	ChallengeID string `json:"challenge_id"`

	// Accepted is false when the report was rejected or deduplicated;
	// no state changed in that case.
	Accepted bool `json:"accepted"`

	// Duplicate is true when the idempotency key was already seen.
	Duplicate bool `json:"duplicate"`

	// NewTotal is the challenge counter after this report's increment.
	NewTotal int64 `json:"new_total"`

	// CrossedThreshold is true on exactly one report per challenge: the one
	// whose increment first reached or exceeded the target.
	CrossedThreshold bool `json:"crossed_threshold"`
}

// RewardGrant records that a contributor's completion reward was issued.
// The (ChallengeID, ContributorID) key is the durable exactly-once guard the
// completion workflow checks when resuming after a crash.
type RewardGrant struct {
	ChallengeID    string    `json:"challenge_id" db:"challenge_id"`
	ContributorID  string    `json:"contributor_id" db:"contributor_id"`
	RewardItem     string    `json:"reward_item" db:"reward_item"`
	RewardQuantity int       `json:"reward_quantity" db:"reward_quantity"`
	GrantedAt      time.Time `json:"granted_at" db:"granted_at"`
}

// GrantFailure records a contributor whose reward dispatch exhausted all
// retries. The challenge still completes; failures are retained for manual
// remediation through the audit view.
type GrantFailure struct {
	ChallengeID   string    `json:"challenge_id" db:"challenge_id"`
	ContributorID string    `json:"contributor_id" db:"contributor_id"`
	Reason        string    `json:"reason" db:"reason"`
	FailedAt      time.Time `json:"failed_at" db:"failed_at"`
}

// CompletionSummary is what the announcer receives when a challenge completes.
type CompletionSummary struct {
	ChallengeID      string `json:"challenge_id"`
	Name             string `json:"name"`
	TotalReached     int64  `json:"total_reached"`
	ContributorCount int    `json:"contributor_count"`
}
