package dto

import "github.com/noah-isme/mural-go-api/internal/models"

// TutorSessionRequest opens or resumes a session. An empty ID creates a new session.
type TutorSessionRequest struct {
	SessionID string `json:"sessionId" validate:"omitempty,max=64,printascii"`
}

// TutorMessageRequest is a user turn.
type TutorMessageRequest struct {
	Text string `json:"text" validate:"required,max=8000"`
}

// TutorSessionResponse describes a session and its transcript.
type TutorSessionResponse struct {
	SessionID  string               `json:"sessionId"`
	State      string               `json:"state"`
	Provider   string               `json:"provider"`
	DemoMode   bool                 `json:"demoMode"`
	Error      string               `json:"error,omitempty"`
	Transcript []models.ChatMessage `json:"transcript"`
}

// TutorStreamEvent is one server-sent event of a streamed turn.
type TutorStreamEvent struct {
	Type       string               `json:"type"`
	Transcript []models.ChatMessage `json:"transcript,omitempty"`
	Message    string               `json:"message,omitempty"`
}

// VisionRequest is the text part of an image analysis request.
type VisionRequest struct {
	Prompt string `json:"prompt" form:"prompt" validate:"max=4000"`
}

// VisionResponse is the model's description of an image.
type VisionResponse struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
}
