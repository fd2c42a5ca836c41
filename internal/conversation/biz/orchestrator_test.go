package biz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/agent-bridge/internal/conversation/types"
	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
	"github.com/lk2023060901/agent-bridge/internal/serving"
)

type harness struct {
	store    *mapStore
	state    *State
	endpoint *fakeEndpoint
	space    *fakeSpace
	orch     *Orchestrator
	now      time.Time
}

func newHarness(t *testing.T, mode serving.Mode) *harness {
	t.Helper()
	h := &harness{
		store:    newMapStore(),
		endpoint: &fakeEndpoint{out: []types.Message{types.AssistantMessage("answer")}},
		space:    &fakeSpace{answer: &serving.SpaceAnswer{ConversationID: "space-conv", Result: "space answer"}},
		now:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	h.state = NewState(h.store)
	h.orch = NewOrchestrator(OrchestratorConfig{Mode: mode, SignInTimeout: 5 * time.Minute},
		h.state, h.endpoint, h.space, logger.NewNop(), nil)
	h.orch.now = func() time.Time { return h.now }
	return h
}

func (h *harness) turn(text string, id *fakeIdentity, sender *recordingSender) *Turn {
	return &Turn{
		ChannelID:      "msteams",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Event:          EventMessage,
		Text:           text,
		Sender:         sender,
		Identity:       id,
	}
}

func (h *harness) setLoginFlag(t *testing.T, v bool) {
	require.NoError(t, h.state.LoginFlag.Set(context.Background(), UserScope("msteams", "user-1"), v))
}

func (h *harness) history(t *testing.T) []types.Message {
	hist, err := h.state.History.Get(context.Background(), ConversationScope("msteams", "conv-1"))
	require.NoError(t, err)
	return hist
}

func (h *harness) loginFlag(t *testing.T) bool {
	v, err := h.state.LoginFlag.Get(context.Background(), UserScope("msteams", "user-1"))
	require.NoError(t, err)
	return v
}

func TestNoTokenStartsSignIn(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	h.setLoginFlag(t, true)
	id := &fakeIdentity{}
	sender := &recordingSender{}

	outcome, err := h.orch.RunTurn(context.Background(), h.turn("hello", id, sender))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSignIn, outcome)
	assert.Equal(t, 1, id.prompts)
	assert.Empty(t, sender.sent)
	assert.Empty(t, h.endpoint.calls)
	assert.False(t, h.loginFlag(t))

	dialog, err := h.state.Dialog.Get(context.Background(), ConversationScope("msteams", "conv-1"))
	require.NoError(t, err)
	assert.True(t, dialog.SignInPending)
	assert.Equal(t, h.now, dialog.PromptedAt)
}

func TestFirstLoginConfirmsWithoutBackendCall(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	id := &fakeIdentity{byCode: map[string]string{"654321": "user-jwt"}}

	_, err := h.orch.RunTurn(context.Background(), h.turn("what is revenue", id, &recordingSender{}))
	require.NoError(t, err)

	sender := &recordingSender{}
	turn := h.turn("", id, sender)
	turn.Event = EventVerifyState
	turn.Code = "654321"

	outcome, err := h.orch.RunTurn(context.Background(), turn)
	require.NoError(t, err)

	assert.Equal(t, OutcomeLoggedIn, outcome)
	assert.Equal(t, []string{MsgLoggedIn}, sender.texts())
	assert.Empty(t, h.endpoint.calls)
	assert.True(t, h.loginFlag(t))

	dialog, err := h.state.Dialog.Get(context.Background(), ConversationScope("msteams", "conv-1"))
	require.NoError(t, err)
	assert.False(t, dialog.SignInPending)
}

func TestMagicCodeMessageCompletesSignIn(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	id := &fakeIdentity{byCode: map[string]string{"123456": "user-jwt"}}

	_, err := h.orch.RunTurn(context.Background(), h.turn("hi", id, &recordingSender{}))
	require.NoError(t, err)

	sender := &recordingSender{}
	outcome, err := h.orch.RunTurn(context.Background(), h.turn("my code is 123456", id, sender))
	require.NoError(t, err)

	assert.Equal(t, OutcomeLoggedIn, outcome)
	assert.Equal(t, []string{MsgLoggedIn}, sender.texts())
	assert.Contains(t, id.codes, "123456")
}

func TestPendingSignInWithoutToken(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	id := &fakeIdentity{}

	_, err := h.orch.RunTurn(context.Background(), h.turn("hi", id, &recordingSender{}))
	require.NoError(t, err)

	sender := &recordingSender{}
	outcome, err := h.orch.RunTurn(context.Background(), h.turn("still here?", id, sender))
	require.NoError(t, err)

	assert.Equal(t, OutcomePending, outcome)
	assert.Empty(t, sender.sent)
	assert.Equal(t, 1, id.prompts)
}

func TestExpiredSignInReportsAuthenticationFailure(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	id := &fakeIdentity{}

	_, err := h.orch.RunTurn(context.Background(), h.turn("hi", id, &recordingSender{}))
	require.NoError(t, err)

	h.now = h.now.Add(6 * time.Minute)
	sender := &recordingSender{}
	outcome, err := h.orch.RunTurn(context.Background(), h.turn("hello again", id, sender))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAuthFailed, outcome)
	assert.Equal(t, []string{MsgAuthFailed}, sender.texts())
	assert.Empty(t, h.endpoint.calls)

	// the next turn starts a fresh prompt
	outcome, err = h.orch.RunTurn(context.Background(), h.turn("hello again", id, &recordingSender{}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSignIn, outcome)
	assert.Equal(t, 2, id.prompts)
}

func TestSignedInTurnCallsBackendOnce(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	h.setLoginFlag(t, true)
	h.endpoint.out = []types.Message{
		{Role: types.RoleAssistant, ToolCalls: []types.ToolCall{{ID: "c1", Name: "sql", Arguments: "{}"}}},
		types.ToolResultMessage("c1", "rows"),
		types.AssistantMessage("Revenue is up."),
	}
	id := &fakeIdentity{cached: "user-jwt"}
	sender := &recordingSender{}

	outcome, err := h.orch.RunTurn(context.Background(), h.turn("  What Is Revenue?  ", id, sender))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAnswered, outcome)
	require.Len(t, h.endpoint.calls, 1)
	assert.Equal(t, "what is revenue?", h.endpoint.calls[0].utterance)
	assert.Equal(t, "user-jwt", h.endpoint.calls[0].token)
	assert.NotContains(t, sender.texts(), MsgLoggedIn)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, []string{"sql", "{}", "rows"}, sender.sent[0].tool)
	assert.Equal(t, "Revenue is up.", sender.sent[1].text)

	hist := h.history(t)
	require.Len(t, hist, 4)
	assert.Equal(t, types.UserMessage("what is revenue?"), hist[0])

	// the next turn sees the persisted history
	_, err = h.orch.RunTurn(context.Background(), h.turn("and costs?", id, &recordingSender{}))
	require.NoError(t, err)
	assert.Len(t, h.endpoint.calls[1].history, 4)
	assert.Len(t, h.history(t), 6)
}

func TestCachedTokenSetsLoginFlag(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	id := &fakeIdentity{cached: "user-jwt"}

	outcome, err := h.orch.RunTurn(context.Background(), h.turn("hello", id, &recordingSender{}))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAnswered, outcome)
	assert.True(t, h.loginFlag(t))
	assert.Len(t, h.endpoint.calls, 1)
}

func TestFailedCallLeavesHistoryUntouched(t *testing.T) {
	tests := []struct {
		name string
		out  []types.Message
		err  error
	}{
		{"protocol", nil, apperrors.New(apperrors.ErrBackendProtocol)},
		{"transport", nil, apperrors.New(apperrors.ErrBackendTransport, "status 503")},
		{"exchange", nil, apperrors.New(apperrors.ErrTokenExchange)},
		{"unmatched tool result", []types.Message{types.ToolResultMessage("nope", "x")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, serving.ModeChat)
			h.setLoginFlag(t, true)
			scope := ConversationScope("msteams", "conv-1")
			before := []types.Message{types.UserMessage("earlier"), types.AssistantMessage("reply")}
			require.NoError(t, h.state.History.Set(context.Background(), scope, before))

			h.endpoint.out, h.endpoint.err = tt.out, tt.err
			sender := &recordingSender{}
			outcome, err := h.orch.RunTurn(context.Background(), h.turn("q", &fakeIdentity{cached: "tok"}, sender))
			require.NoError(t, err)

			assert.Equal(t, OutcomeUnavailable, outcome)
			assert.Equal(t, []string{MsgUnavailable}, sender.texts())
			assert.Equal(t, before, h.history(t))
		})
	}
}

func TestTimedOutCallStillNotifiesUser(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	h.setLoginFlag(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.endpoint.onInvoke = cancel
	h.endpoint.err = apperrors.Wrap(context.DeadlineExceeded, apperrors.ErrBackendTransport, "turn timed out")

	sender := &recordingSender{checkCtx: true}
	outcome, err := h.orch.RunTurn(ctx, h.turn("q", &fakeIdentity{cached: "tok"}, sender))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnavailable, outcome)
	assert.Equal(t, []string{MsgUnavailable}, sender.texts())
	assert.Empty(t, h.history(t))
}

func TestCancelledTurnDoesNotPersist(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	h.setLoginFlag(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orch.RunTurn(ctx, h.turn("q", &fakeIdentity{cached: "tok"}, &recordingSender{}))
	require.Error(t, err)
	assert.Empty(t, h.history(t))
}

func TestStoreFailureIsReturned(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	h.store.failSet = errBoom

	outcome, err := h.orch.RunTurn(context.Background(), h.turn("q", &fakeIdentity{cached: "tok"}, &recordingSender{}))
	require.Error(t, err)
	assert.Equal(t, OutcomeError, outcome)
	assert.True(t, apperrors.Is(err, apperrors.ErrStateStore))
}

func TestLogout(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	h.setLoginFlag(t, true)
	id := &fakeIdentity{cached: "tok"}
	sender := &recordingSender{}

	outcome, err := h.orch.RunTurn(context.Background(), h.turn(" LogOut ", id, sender))
	require.NoError(t, err)

	assert.Equal(t, OutcomeLoggedOut, outcome)
	assert.Equal(t, 1, id.signOuts)
	assert.Equal(t, []string{MsgSignedOut}, sender.texts())
	assert.Empty(t, h.endpoint.calls)

	outcome, err = h.orch.RunTurn(context.Background(), h.turn("hi", id, &recordingSender{}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSignIn, outcome)
}

func TestVerifyStateWithoutPrompt(t *testing.T) {
	h := newHarness(t, serving.ModeChat)
	sender := &recordingSender{}
	turn := h.turn("", &fakeIdentity{cached: "tok"}, sender)
	turn.Event = EventVerifyState

	outcome, err := h.orch.RunTurn(context.Background(), turn)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Empty(t, sender.sent)
}

func TestSpaceModeKeepsConversation(t *testing.T) {
	h := newHarness(t, serving.ModeSpace)
	h.setLoginFlag(t, true)
	id := &fakeIdentity{cached: "tok"}

	sender := &recordingSender{}
	outcome, err := h.orch.RunTurn(context.Background(), h.turn("Top customers", id, sender))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, outcome)
	assert.Equal(t, []string{"space answer"}, sender.texts())

	_, err = h.orch.RunTurn(context.Background(), h.turn("and last year?", id, &recordingSender{}))
	require.NoError(t, err)

	assert.Equal(t, []string{"", "space-conv"}, h.space.convs)
	assert.Empty(t, h.endpoint.calls)
	assert.Empty(t, h.history(t))
}

func TestSpaceModeFailure(t *testing.T) {
	h := newHarness(t, serving.ModeSpace)
	h.setLoginFlag(t, true)
	h.space.err = apperrors.New(apperrors.ErrSpaceTimeout)
	sender := &recordingSender{}

	outcome, err := h.orch.RunTurn(context.Background(), h.turn("q", &fakeIdentity{cached: "tok"}, sender))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnavailable, outcome)
	assert.Equal(t, []string{MsgUnavailable}, sender.texts())
}

func TestNormalizeAndMagicCode(t *testing.T) {
	assert.Equal(t, "hello world", NormalizeUtterance("  Hello World \n"))

	tests := []struct {
		text string
		want string
	}{
		{"123456", "123456"},
		{"code: 987654.", "987654"},
		{"1234567", ""},
		{"12345", ""},
		{"no code", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MagicCode(tt.text), tt.text)
	}
}
