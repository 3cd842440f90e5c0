package ai

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrEmptyMessage is returned when a turn carries neither text nor attachment.
var ErrEmptyMessage = errors.New("message must contain text or an attachment")

// Role identifies the author of a conversation turn.
type Role string

// Conversation roles.
const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is a prior turn replayed into a new session.
type Message struct {
	Role Role
	Text string
}

// InlineAttachment is a file sent alongside a user turn. Either Data or URI is set.
type InlineAttachment struct {
	Name     string
	MimeType string
	Data     []byte
	URI      string
}

// SessionConfig configures a new conversation with the model.
type SessionConfig struct {
	Model             string
	SystemInstruction string
	History           []Message
}

// Provider opens chat sessions against a hosted model.
type Provider interface {
	Name() string
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is a stateful conversation. Calls must not overlap.
type Session interface {
	SendMessageStream(ctx context.Context, text string, attachment *InlineAttachment) (Stream, error)
}

// Stream yields response fragments in order. Recv returns io.EOF once the response is complete.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Collect drains a stream into a single string.
func Collect(stream Stream) (string, error) {
	defer stream.Close()

	var builder strings.Builder
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return builder.String(), nil
		}
		if err != nil {
			return builder.String(), err
		}
		builder.WriteString(fragment)
	}
}

// MergeHistory collapses consecutive turns from the same role and drops leading model turns,
// producing the strictly alternating history hosted chat APIs expect.
func MergeHistory(history []Message) []Message {
	merged := make([]Message, 0, len(history))
	for _, message := range history {
		text := strings.TrimSpace(message.Text)
		if text == "" {
			continue
		}
		if len(merged) == 0 && message.Role != RoleUser {
			continue
		}
		if len(merged) > 0 && merged[len(merged)-1].Role == message.Role {
			merged[len(merged)-1].Text += "\n\n" + text
			continue
		}
		merged = append(merged, Message{Role: message.Role, Text: text})
	}
	return merged
}

type sliceStream struct {
	fragments []string
	pos       int
}

// NewSliceStream returns a stream over fixed fragments.
func NewSliceStream(fragments ...string) Stream {
	return &sliceStream{fragments: fragments}
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	fragment := s.fragments[s.pos]
	s.pos++
	return fragment, nil
}

func (s *sliceStream) Close() error {
	s.pos = len(s.fragments)
	return nil
}
