// Package model holds the wire-independent domain entities shared across
// MindAtlas's storage, indexing, retrieval, and skill layers.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TimeMode selects how an Entry anchors itself in time.
type TimeMode string

const (
	TimeModePoint TimeMode = "POINT"
	TimeModeRange TimeMode = "RANGE"
	TimeModeNone  TimeMode = "NONE"
)

// Entry is a typed, taggable note. UpdatedAt is monotonic per entry and is
// the version stamp the indexing outbox compares against.
type Entry struct {
	ID        uuid.UUID
	Title     string
	Summary   *string
	Content   *string
	TypeID    uuid.UUID
	TimeMode  TimeMode
	TimeAt    *time.Time
	TimeFrom  *time.Time
	TimeTo    *time.Time
	TagIDs    []uuid.UUID
	UpdatedAt time.Time
	Deleted   bool
}

// Signature is the indexable content fingerprint used by the coalescing and
// signature-change policies: only title/summary/content changes
// are significant to the indexer.
func (e Entry) Signature() [3]string {
	var s, c string
	if e.Summary != nil {
		s = *e.Summary
	}
	if e.Content != nil {
		c = *e.Content
	}
	return [3]string{e.Title, s, c}
}

// EntryType carries the flags that decide whether an Entry is indexable.
type EntryType struct {
	ID           uuid.UUID
	Code         string
	Name         string
	Color        string
	Icon         string
	GraphEnabled bool
	AIEnabled    bool
	Enabled      bool
}

// Indexable is the AND of the three enablement flags.
func (t EntryType) Indexable() bool {
	return t.GraphEnabled && t.AIEnabled && t.Enabled
}

// Tag is a case-insensitive-unique label.
type Tag struct {
	ID          uuid.UUID
	Name        string
	Color       string
	Description string
}

// RelationType describes an edge kind between entries.
type RelationType struct {
	ID       uuid.UUID
	Code     string
	Name     string
	Directed bool
	Enabled  bool
}

// Relation is a concrete edge between two entries.
type Relation struct {
	ID             uuid.UUID
	FromEntryID    uuid.UUID
	ToEntryID      uuid.UUID
	RelationTypeID uuid.UUID
}

// ParseStatus is the lifecycle of an attachment's text extraction.
type ParseStatus string

const (
	ParseStatusPending    ParseStatus = "pending"
	ParseStatusProcessing ParseStatus = "processing"
	ParseStatusCompleted  ParseStatus = "completed"
	ParseStatusFailed     ParseStatus = "failed"
)

// Attachment is an uploaded object linked to an Entry.
type Attachment struct {
	ID                    uuid.UUID
	EntryID               uuid.UUID
	FilePath              string
	OriginalFilename      string
	ContentType           string
	Size                  int64
	ParseStatus           ParseStatus
	ParsedText            *string
	IndexToKnowledgeGraph bool
}

// Role identifies the speaker of a chat Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Conversation groups Messages under a single chat thread.
type Conversation struct {
	ID        uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn of a Conversation, with optional UI-replay arrays.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           Role
	Content        string
	ToolCalls      json.RawMessage
	ToolResults    json.RawMessage
	SkillCalls     json.RawMessage
	Analysis       json.RawMessage
	CreatedAt      time.Time
}

// Component identifies which subsystem an AiComponentBinding pins a model to.
type Component string

const (
	ComponentAssistant Component = "assistant"
	ComponentLightRAG  Component = "lightrag"
)

// ModelType distinguishes chat/completions models from embedding models.
type ModelType string

const (
	ModelTypeLLM       ModelType = "llm"
	ModelTypeEmbedding ModelType = "embedding"
)

// AiCredential owns zero or more AiModel rows.
type AiCredential struct {
	ID      uuid.UUID
	Name    string
	BaseURL string
	APIKey  string // encrypted at rest by the storage collaborator
}

// AiModel is a named model offered by a credential.
type AiModel struct {
	ID           uuid.UUID
	CredentialID uuid.UUID
	Name         string
	Type         ModelType
}

// AiComponentBinding pins one (component, model_type) pair to a model.
// ModelID is weak: ON DELETE SET NULL at the storage layer.
type AiComponentBinding struct {
	Component Component
	ModelType ModelType
	ModelID   *uuid.UUID
}

// ToolKind distinguishes built-in local tools from operator-configured
// remote HTTP tools.
type ToolKind string

const (
	ToolKindLocal  ToolKind = "local"
	ToolKindRemote ToolKind = "remote"
)

// AuthKind selects how a RemoteToolConfig authenticates outbound calls.
type AuthKind string

const (
	AuthNone   AuthKind = "none"
	AuthBearer AuthKind = "bearer"
	AuthBasic  AuthKind = "basic"
	AuthAPIKey AuthKind = "api_key"
)

// BodyType selects how a remote tool's request body is built.
type BodyType string

const (
	BodyNone       BodyType = "none"
	BodyFormData   BodyType = "form-data"
	BodyURLEncoded BodyType = "x-www-form-urlencoded"
	BodyJSON       BodyType = "json"
	BodyXML        BodyType = "xml"
	BodyRaw        BodyType = "raw"
)

// RemoteToolConfig is the persisted configuration of an HTTP-backed tool.
type RemoteToolConfig struct {
	EndpointURL    string
	Method         string
	Headers        map[string]string
	QueryParams    map[string]string
	BodyType       BodyType
	BodyContent    string
	PayloadWrapper string

	Auth         AuthKind
	BearerToken  string
	BasicUser    string
	BasicPass    string
	APIKeyHeader string
	APIKeyValue  string

	TimeoutSec int
}

// AssistantTool is either a built-in local function or a RemoteToolConfig.
type AssistantTool struct {
	Name        string
	Description string
	Kind        ToolKind
	Remote      *RemoteToolConfig
	Enabled     bool
}

// SkillMode selects the skill executor's two execution strategies.
type SkillMode string

const (
	SkillModeSteps SkillMode = "steps"
	SkillModeAgent SkillMode = "agent"
)

// KBConfig controls whether a skill injects retrieval context.
type KBConfig struct {
	Enabled bool
}

// AssistantSkill is a declarative recipe: an ordered step list (steps mode)
// or a system prompt plus tool bindings (agent mode).
type AssistantSkill struct {
	Name           string
	Description    string
	IntentExamples []string
	Tools          []string
	Mode           SkillMode
	SystemPrompt   *string
	KBConfig       KBConfig
	IsSystem       bool
	Enabled        bool
	Steps          []AssistantSkillStep
}

// StepType is one of the three step kinds a steps-mode skill can run.
type StepType string

const (
	StepAnalysis StepType = "analysis"
	StepTool     StepType = "tool"
	StepSummary  StepType = "summary"
)

// ArgsSource selects how a tool step builds its call arguments.
type ArgsSource string

const (
	ArgsFromContext  ArgsSource = "context"
	ArgsFromPrevious ArgsSource = "previous"
	ArgsFromCustom   ArgsSource = "custom"
	ArgsFromJSON     ArgsSource = "json"
)

// OutputMode selects whether an analysis step's output is parsed as JSON.
type OutputMode string

const (
	OutputText OutputMode = "text"
	OutputJSON OutputMode = "json"
)

// AssistantSkillStep is one ordered step of a steps-mode skill.
type AssistantSkillStep struct {
	StepOrder        int
	Type             StepType
	Instruction      *string
	ToolName         *string
	ArgsFrom         *ArgsSource
	ArgsTemplate     *string
	OutputMode       *OutputMode
	OutputFields     []string
	IncludeInSummary bool
}
