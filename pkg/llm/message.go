package llm

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles the completion endpoint accepts.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message represents a single message in a conversation.
// Messages are values: once placed in a CompletionRequest they are copied
// and later caller mutation does not leak into the sent request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// SystemMessage is shorthand for NewMessage(RoleSystem, content).
func SystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// UserMessage is shorthand for NewMessage(RoleUser, content).
func UserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// AssistantMessage is shorthand for NewMessage(RoleAssistant, content).
func AssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}
