package model

// PRState represents the lifecycle state of a tracked pull request.
//
// PRStateClosed exists for completeness with the upstream GitHub API but is
// never persisted: a PR closed without a merge is abandoned and is neither
// inserted nor updated (see PullRequest.IsAbandoned).
type PRState string

// PRState values.
const (
	PRStateOpen   PRState = "open"
	PRStateMerged PRState = "merged"
	PRStateClosed PRState = "closed"
)

// SyncFailureStatus represents the lifecycle of a recorded sync failure.
type SyncFailureStatus string

// SyncFailureStatus values.
const (
	SyncFailureStatusPending   SyncFailureStatus = "pending"
	SyncFailureStatusResolved  SyncFailureStatus = "resolved"
	SyncFailureStatusPermanent SyncFailureStatus = "permanent"
)

// ParticipantAction tags the kind of activity a participant contributed to a
// pull request. A participant may have contributed more than one kind;
// PullRequest.Participants records every distinct action per login.
type ParticipantAction string

// ParticipantAction values.
const (
	ParticipantActionComment          ParticipantAction = "comment"
	ParticipantActionApproval         ParticipantAction = "approval"
	ParticipantActionChangesRequested ParticipantAction = "changes_requested"
	ParticipantActionDismissed        ParticipantAction = "dismissed"
	ParticipantActionReview           ParticipantAction = "review"
	ParticipantActionCommit           ParticipantAction = "commit"
)

// RateLimitPool identifies a distinct GitHub API rate-limit bucket.
type RateLimitPool string

// RateLimitPool values.
const (
	RateLimitPoolCore    RateLimitPool = "core"
	RateLimitPoolSearch  RateLimitPool = "search"
	RateLimitPoolGraphQL RateLimitPool = "graphql"
)

// RateLimitHealth classifies how much headroom remains in a rate-limit pool.
type RateLimitHealth string

// RateLimitHealth values, most to least healthy.
const (
	RateLimitHealthy   RateLimitHealth = "healthy"
	RateLimitWarning   RateLimitHealth = "warning"
	RateLimitCritical  RateLimitHealth = "critical"
	RateLimitExhausted RateLimitHealth = "exhausted"
)

// RequestPriority orders queued scheduler work; lower values run first.
type RequestPriority int

// RequestPriority values.
const (
	PriorityHigh   RequestPriority = 1
	PriorityNormal RequestPriority = 2
	PriorityLow    RequestPriority = 3
)

// RequestState tracks a queued scheduler request through its lifecycle.
type RequestState string

// RequestState values.
const (
	RequestStateQueued    RequestState = "queued"
	RequestStateRunning   RequestState = "running"
	RequestStateCompleted RequestState = "completed"
	RequestStateFailed    RequestState = "failed"
	RequestStateRetrying  RequestState = "retrying"
)
