package types

// Role identifies who spoke a ConversationTurn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one turn of prior dialogue supplied by the caller.
// The sequence is finite and its lifecycle is tied to a session the caller
// holds; the pipeline never persists it.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserQuery is the immutable input to a single process_query call.
type UserQuery struct {
	Text             string             `json:"text"`
	DeclaredLanguage *string            `json:"declared_language,omitempty"`
	History          []ConversationTurn `json:"conversation_history,omitempty"`
	SkipCache        bool               `json:"skip_cache"`
}
