package dto

// LoginRequest carries the administrator passphrase.
type LoginRequest struct {
	Passphrase string `json:"passphrase" validate:"required,max=256"`
}

// LoginResponse is the issued administrator token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	Role      string `json:"role"`
}

// AiConfigRequest replaces the tutor course context.
type AiConfigRequest struct {
	Context string `json:"context" validate:"max=20000"`
}

// AiConfigResponse exposes the stored tutor configuration.
type AiConfigResponse struct {
	Context string `json:"context"`
}
