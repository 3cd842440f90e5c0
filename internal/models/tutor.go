package models

// ChatRole identifies the author of a chat turn.
type ChatRole string

// Chat roles understood by the tutor.
const (
	ChatRoleUser  ChatRole = "user"
	ChatRoleModel ChatRole = "model"
)

// ChatMessage is one turn of a tutor conversation.
type ChatMessage struct {
	Role      ChatRole `json:"role"`
	Text      string   `json:"text"`
	IsError   bool     `json:"isError,omitempty"`
	IsLoading bool     `json:"isLoading,omitempty"`
	// IsSynthetic marks notices generated by the service, such as auto-attach announcements.
	IsSynthetic bool `json:"isSynthetic,omitempty"`
}

// Transcript is the ordered list of turns in a conversation.
type Transcript []ChatMessage

// Clone returns an independent copy of the transcript.
func (t Transcript) Clone() Transcript {
	if t == nil {
		return Transcript{}
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// Seed returns the turns that may be replayed to a model: loading, error and synthetic turns are dropped.
func (t Transcript) Seed() Transcript {
	out := make(Transcript, 0, len(t))
	for _, message := range t {
		if message.IsLoading || message.IsError || message.IsSynthetic {
			continue
		}
		out = append(out, message)
	}
	return out
}

// AiConfig is the administrator-authored context injected into every tutor session.
type AiConfig struct {
	Context string `json:"context"`
}

// DefaultAiConfig is used until an administrator saves a configuration.
func DefaultAiConfig() AiConfig {
	return AiConfig{
		Context: "You assist students of the Business Administration course. Answer with academic formality and cite classic management authors (such as Kotler, Chiavenato or Porter) when relevant.",
	}
}
