package store

import "time"

// Agent is one worker identity within a workspace (spec §3 "Agent").
type Agent struct {
	ID                  int64
	Name                string
	Status              string
	TotalSessions       int
	TotalTasksCompleted int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SessionContext holds the ordered structured-context lists a Session may
// carry, plus the git context supplemented from boundary/gitcontext.go.
type SessionContext struct {
	Wins         []string `json:"wins"`
	Issues       []string `json:"issues"`
	Decisions    []string `json:"decisions"`
	NextSteps    []string `json:"next_steps"`
	Challenges   []string `json:"challenges"`
	GitCommits   []string `json:"git_commits"`
	FilesChanged []string `json:"files_changed"`
}

// Visibility is the simple owner/visibility ACL model (spec §3, §4.3.7).
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
	VisibilityPublic  Visibility = "public"
)

// Session is a recorded unit of work for a matrix (spec §3 "Session").
type Session struct {
	ID                string
	Summary           string
	Context           SessionContext
	Tags              []string
	AgentID           *int64
	Visibility        Visibility
	ProjectPath       string
	PreviousSessionID *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Confidence is the step function parallel to MaturityStage (spec §3).
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
	ConfidenceProven Confidence = "proven"
)

// MaturityStage is the ordinal progression of a learning (spec §3, GLOSSARY).
type MaturityStage string

const (
	StageObservation MaturityStage = "observation"
	StageLearning    MaturityStage = "learning"
	StagePattern     MaturityStage = "pattern"
	StagePrinciple    MaturityStage = "principle"
	StageWisdom      MaturityStage = "wisdom"
)

// StageOf implements the monotone step function named in spec §3:
// {0→observation, 1→learning, 3→pattern, 5→principle, 10→wisdom}.
func StageOf(timesValidated int) MaturityStage {
	switch {
	case timesValidated >= 10:
		return StageWisdom
	case timesValidated >= 5:
		return StagePrinciple
	case timesValidated >= 3:
		return StagePattern
	case timesValidated >= 1:
		return StageLearning
	default:
		return StageObservation
	}
}

// ConfidenceOf is the parallel step function the spec says "follows"
// MaturityStage's shape, applied whenever times_validated advances without
// an explicit confidence override from the caller.
func ConfidenceOf(timesValidated int) Confidence {
	switch {
	case timesValidated >= 10:
		return ConfidenceProven
	case timesValidated >= 5:
		return ConfidenceHigh
	case timesValidated >= 1:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Learning is a retained insight with confidence and maturity (spec §3).
type Learning struct {
	ID              int64
	Category        string
	Title           string
	Description     string
	WhatHappened    string
	Lesson          string
	Prevention      string
	Context         string
	SourceURL       string
	Confidence      Confidence
	MaturityStage   MaturityStage
	TimesValidated  int
	LastValidatedAt *time.Time
	AgentID         *int64
	Visibility      Visibility
	ProjectPath     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TaskDomain scopes a UnifiedTask (spec §3 "Session Task / Unified Task").
type TaskDomain string

const (
	DomainSystem  TaskDomain = "system"
	DomainProject TaskDomain = "project"
	DomainSession TaskDomain = "session"
)

// TaskPriority is shared by unified tasks and agent tasks (spec §3).
type TaskPriority string

const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityNormal   TaskPriority = "normal"
	PriorityLow      TaskPriority = "low"
)

// GithubSyncStatus tracks UnifiedTask ↔ GitHub issue linkage (spec §3).
type GithubSyncStatus string

const (
	SyncPending   GithubSyncStatus = "pending"
	SyncSynced    GithubSyncStatus = "synced"
	SyncError     GithubSyncStatus = "error"
	SyncLocalOnly GithubSyncStatus = "local_only"
)

// UnifiedTask is a cross-cutting task reference, optionally mirrored to
// GitHub. Per spec §9's resolved open question, this is the only task
// reference model — there is no separate session_tasks table.
type UnifiedTask struct {
	ID                string
	Domain            TaskDomain
	Priority          TaskPriority
	Status            string
	Title             string
	Description       string
	SessionID         *string
	GithubIssueNumber *int
	GithubIssueURL    *string
	GithubRepo        *string
	GithubSyncStatus  GithubSyncStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AgentTaskStatus enumerates the unified state machine's statuses (spec §4.4).
type AgentTaskStatus string

const (
	TaskPending    AgentTaskStatus = "pending"
	TaskQueued     AgentTaskStatus = "queued"
	TaskProcessing AgentTaskStatus = "processing"
	TaskRunning    AgentTaskStatus = "running"
	TaskCompleted  AgentTaskStatus = "completed"
	TaskFailed     AgentTaskStatus = "failed"
	TaskRetrying   AgentTaskStatus = "retrying"
	TaskBlocked    AgentTaskStatus = "blocked"
	TaskCancelled  AgentTaskStatus = "cancelled"
)

// IsTerminal reports whether a status admits no further transitions.
func (s AgentTaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskCancelled, TaskFailed:
		return true
	default:
		return false
	}
}

// AgentTask is a Mission: a unit of durable, retriable work (spec §3 "Agent
// Task (Mission)", §4.4).
type AgentTask struct {
	ID              string
	Prompt          string
	Context         string
	Priority        TaskPriority
	Status          AgentTaskStatus
	RetryCount      int
	MaxRetries      int
	TimeoutMS       int64
	DependsOn       []string
	AssignedTo      *int64
	ExecutionID     *string
	ParentMissionID *string
	UnifiedTaskID   *string
	SessionID       *string
	NextRetryAt     *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MatrixStatus is a registry entry's presence state (spec §3 "Matrix
// Registry Entry").
type MatrixStatus string

const (
	MatrixOnline  MatrixStatus = "online"
	MatrixOffline MatrixStatus = "offline"
	MatrixAway    MatrixStatus = "away"
)

// MatrixRegistryEntry tracks one matrix's presence (spec §3, §4.5).
type MatrixRegistryEntry struct {
	MatrixID    string
	DisplayName string
	Status      MatrixStatus
	LastSeen    time.Time
	Metadata    map[string]any
}

// MatrixMessageType distinguishes broadcast from direct messages (spec §3).
type MatrixMessageType string

const (
	MessageBroadcast MatrixMessageType = "broadcast"
	MessageDirect    MatrixMessageType = "direct"
)

// MatrixMessageStatus is the two-phase-commit outbound lifecycle (spec §4.6).
type MatrixMessageStatus string

const (
	MessagePending    MatrixMessageStatus = "pending"
	MessageSending    MatrixMessageStatus = "sending"
	MessageSent       MatrixMessageStatus = "sent"
	MessageDelivered  MatrixMessageStatus = "delivered"
	MessageFailed     MatrixMessageStatus = "failed"
)

// MatrixMessage is one entry in the outbound/inbound message log (spec §3).
type MatrixMessage struct {
	ID             string
	FromMatrix     string
	ToMatrix       *string
	Content        string
	Type           MatrixMessageType
	Status         MatrixMessageStatus
	SequenceNumber int64
	RetryCount     int
	MaxRetries     int
	NextRetryAt    *time.Time
	LastError      string
	CreatedAt      time.Time
	AttemptedAt    *time.Time
	SentAt         *time.Time
	DeliveredAt    *time.Time
	ReadAt         *time.Time
}

// Token is an opaque hub-issued credential (spec §3 "Token").
type Token struct {
	Token     string
	MatrixID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SearchLogEntry is the telemetry record emitted by every hybrid search
// (spec §4.3.6).
type SearchLogEntry struct {
	Query       string
	QueryType   string
	ResultCount int
	LatencyMS   int64
	Source      string
	AgentID     *int64
	CreatedAt   time.Time
}
