package ai

import "context"

// DemoNotice is the reply produced when no API key is configured.
const DemoNotice = "The tutor is running in demo mode because no AI provider API key is configured. " +
	"Ask an administrator to set the key to enable real answers."

// DemoProvider answers every turn with DemoNotice.
type DemoProvider struct{}

// NewDemoProvider returns a provider that needs no credentials.
func NewDemoProvider() *DemoProvider {
	return &DemoProvider{}
}

// Name identifies the provider in logs and metrics.
func (DemoProvider) Name() string {
	return "demo"
}

// NewSession never fails.
func (DemoProvider) NewSession(context.Context, SessionConfig) (Session, error) {
	return demoSession{}, nil
}

type demoSession struct{}

func (demoSession) SendMessageStream(_ context.Context, text string, attachment *InlineAttachment) (Stream, error) {
	if text == "" && attachment == nil {
		return nil, ErrEmptyMessage
	}
	return NewSliceStream(DemoNotice), nil
}
