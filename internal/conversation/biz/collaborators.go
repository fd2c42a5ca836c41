package biz

import (
	"context"

	"github.com/lk2023060901/agent-bridge/internal/conversation/types"
	"github.com/lk2023060901/agent-bridge/internal/serving"
)

// Sender emits outbound activities for the current turn
type Sender interface {
	SendText(ctx context.Context, text string) error
	SendToolCall(ctx context.Context, name, arguments, output string) error
}

// Identity is the sign-in collaborator bound to the current turn
type Identity interface {
	// GetToken returns the cached platform token, redeeming code when non-empty; "" means no token
	GetToken(ctx context.Context, code string) (string, error)
	// PromptSignIn sends the sign-in card
	PromptSignIn(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// Endpoint invokes the serving endpoint with the conversation so far
type Endpoint interface {
	Invoke(ctx context.Context, utterance string, history []types.Message, platformToken string) ([]types.Message, error)
}

// SpaceEndpoint answers single questions in an agent space
type SpaceEndpoint interface {
	AskSpace(ctx context.Context, question, conversationID, platformToken string) (*serving.SpaceAnswer, error)
}
