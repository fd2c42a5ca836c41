package biz

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
	"github.com/lk2023060901/agent-bridge/internal/pkg/metrics"
	"github.com/lk2023060901/agent-bridge/internal/serving"
)

// 用户可见的回复
const (
	MsgLoggedIn    = "You are now logged in."
	MsgAuthFailed  = "Authentication failed."
	MsgUnavailable = "Agent is not available at this moment."
	MsgSignedOut   = "You have been signed out."
)

const logoutCommand = "logout"

const unavailableSendTimeout = 10 * time.Second

var magicCodePattern = regexp.MustCompile(`(?:^|\D)(\d{6})(?:\D|$)`)

// Event 入站事件类型
type Event int

const (
	EventMessage Event = iota
	EventVerifyState
)

// Step 轮次状态
type Step int

const (
	StepEnsureSignedIn Step = iota
	StepPerformCall
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepEnsureSignedIn:
		return "ensure_signed_in"
	case StepPerformCall:
		return "perform_call"
	default:
		return "done"
	}
}

// Outcome 轮次结果
type Outcome string

const (
	OutcomeAnswered    Outcome = metrics.OutcomeAnswered
	OutcomeLoggedIn    Outcome = metrics.OutcomeLoggedIn
	OutcomeSignIn      Outcome = metrics.OutcomeSignIn
	OutcomePending     Outcome = metrics.OutcomePending
	OutcomeAuthFailed  Outcome = metrics.OutcomeAuthFailed
	OutcomeLoggedOut   Outcome = metrics.OutcomeLoggedOut
	OutcomeUnavailable Outcome = metrics.OutcomeUnavailable
	OutcomeIgnored     Outcome = metrics.OutcomeIgnored
	OutcomeError       Outcome = metrics.OutcomeError
)

// Turn is one inbound user event together with the collaborators bound to it
type Turn struct {
	ChannelID      string
	ConversationID string
	UserID         string
	Event          Event
	Text           string
	Code           string // magic code carried by signin/verifyState

	Sender   Sender
	Identity Identity
}

func (t *Turn) userScope() string {
	return UserScope(t.ChannelID, t.UserID)
}

func (t *Turn) conversationScope() string {
	return ConversationScope(t.ChannelID, t.ConversationID)
}

// turnContext carries values between steps of a single turn
type turnContext struct {
	step      Step
	token     string
	viaPrompt bool
	outcome   Outcome
}

// OrchestratorConfig 编排配置
type OrchestratorConfig struct {
	Mode          serving.Mode
	SignInTimeout time.Duration
}

// Orchestrator runs the EnsureSignedIn -> PerformCall state machine for each turn
type Orchestrator struct {
	config   OrchestratorConfig
	state    *State
	endpoint Endpoint
	space    SpaceEndpoint
	renderer *Renderer
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator; space may be nil in chat mode
func NewOrchestrator(cfg OrchestratorConfig, state *State, endpoint Endpoint, space SpaceEndpoint, log *logger.Logger, m *metrics.Metrics) *Orchestrator {
	if log == nil {
		log = logger.L()
	}
	if cfg.Mode == "" {
		cfg.Mode = serving.ModeChat
	}
	if cfg.SignInTimeout <= 0 {
		cfg.SignInTimeout = 5 * time.Minute
	}
	return &Orchestrator{
		config:   cfg,
		state:    state,
		endpoint: endpoint,
		space:    space,
		renderer: NewRenderer(log),
		logger:   log.Named("orchestrator"),
		metrics:  m,
		now:      time.Now,
	}
}

// NormalizeUtterance trims and lower-cases the inbound text
func NormalizeUtterance(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// MagicCode extracts a six digit sign-in code from text
func MagicCode(text string) string {
	m := magicCodePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// RunTurn processes one turn to completion. Backend and rendering failures are reported to
// the user and never returned; returned errors come from the state store or the channel.
func (o *Orchestrator) RunTurn(ctx context.Context, turn *Turn) (Outcome, error) {
	start := time.Now()
	done := o.metrics.TurnStarted()
	defer done()

	outcome, err := o.runTurn(ctx, turn)
	if err != nil {
		outcome = OutcomeError
	}
	o.metrics.RecordTurn(string(outcome), time.Since(start))

	o.logger.WithContext(ctx).Info("turn finished",
		zap.String("outcome", string(outcome)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return outcome, err
}

func (o *Orchestrator) runTurn(ctx context.Context, turn *Turn) (Outcome, error) {
	if turn.Event == EventMessage && NormalizeUtterance(turn.Text) == logoutCommand {
		return o.logout(ctx, turn)
	}

	tc := &turnContext{step: StepEnsureSignedIn}
	for tc.step != StepDone {
		var err error
		switch tc.step {
		case StepEnsureSignedIn:
			err = o.ensureSignedIn(ctx, turn, tc)
		case StepPerformCall:
			err = o.performCall(ctx, turn, tc)
		}
		if err != nil {
			return OutcomeError, err
		}
	}
	return tc.outcome, nil
}

func (tc *turnContext) finish(outcome Outcome) {
	tc.outcome = outcome
	tc.step = StepDone
}

// ensureSignedIn resolves the platform token, starting or resuming the sign-in prompt
func (o *Orchestrator) ensureSignedIn(ctx context.Context, turn *Turn, tc *turnContext) error {
	log := o.logger.WithContext(ctx)
	scope := turn.conversationScope()

	dialog, err := o.state.Dialog.Get(ctx, scope)
	if err != nil {
		return err
	}

	if dialog.SignInPending {
		if o.now().Sub(dialog.PromptedAt) > o.config.SignInTimeout {
			log.Info("sign-in prompt expired", zap.Time("prompted_at", dialog.PromptedAt))
			if err := o.state.Dialog.Delete(ctx, scope); err != nil {
				return err
			}
			tc.viaPrompt = true
			tc.step = StepPerformCall
			return nil
		}

		code := turn.Code
		if code == "" && turn.Event == EventMessage {
			code = MagicCode(turn.Text)
		}
		token, err := turn.Identity.GetToken(ctx, code)
		if err != nil {
			return err
		}
		if token == "" {
			log.Debug("sign-in still pending", zap.Bool("with_code", code != ""))
			tc.finish(OutcomePending)
			return nil
		}

		if err := o.state.Dialog.Delete(ctx, scope); err != nil {
			return err
		}
		tc.token = token
		tc.viaPrompt = true
		tc.step = StepPerformCall
		return nil
	}

	if turn.Event == EventVerifyState {
		log.Debug("verifyState without a pending sign-in prompt")
		tc.finish(OutcomeIgnored)
		return nil
	}

	token, err := turn.Identity.GetToken(ctx, "")
	if err != nil {
		return err
	}

	if token == "" {
		if err := o.state.LoginFlag.Set(ctx, turn.userScope(), false); err != nil {
			return err
		}
		if err := turn.Identity.PromptSignIn(ctx); err != nil {
			return err
		}
		if err := o.state.Dialog.Set(ctx, scope, DialogState{SignInPending: true, PromptedAt: o.now()}); err != nil {
			return err
		}
		log.Info("sign-in prompt sent")
		tc.finish(OutcomeSignIn)
		return nil
	}

	if err := o.state.LoginFlag.Set(ctx, turn.userScope(), true); err != nil {
		return err
	}
	tc.token = token
	tc.step = StepPerformCall
	return nil
}

// performCall answers the utterance with the token resolved by ensureSignedIn
func (o *Orchestrator) performCall(ctx context.Context, turn *Turn, tc *turnContext) error {
	o.logger.WithContext(ctx).Debug("perform call",
		zap.Bool("has_token", tc.token != ""),
		zap.Bool("via_prompt", tc.viaPrompt),
	)

	if tc.token == "" {
		if err := turn.Sender.SendText(ctx, MsgAuthFailed); err != nil {
			return err
		}
		tc.finish(OutcomeAuthFailed)
		return nil
	}

	loggedIn, err := o.state.LoginFlag.Get(ctx, turn.userScope())
	if err != nil {
		return err
	}
	if !loggedIn {
		// 首次登录只确认，不调用后端
		if err := o.state.LoginFlag.Set(ctx, turn.userScope(), true); err != nil {
			return err
		}
		if err := turn.Sender.SendText(ctx, MsgLoggedIn); err != nil {
			return err
		}
		tc.finish(OutcomeLoggedIn)
		return nil
	}

	utterance := NormalizeUtterance(turn.Text)
	if o.config.Mode == serving.ModeSpace {
		return o.askSpace(ctx, turn, tc, utterance)
	}

	scope := turn.conversationScope()
	history, err := o.state.History.Get(ctx, scope)
	if err != nil {
		return err
	}

	msgs, err := o.endpoint.Invoke(ctx, utterance, history, tc.token)
	if err != nil {
		return o.unavailable(ctx, turn, tc, err)
	}

	updated, err := o.renderer.Render(ctx, turn.Sender, utterance, msgs, history)
	if err != nil {
		return o.unavailable(ctx, turn, tc, err)
	}

	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrServiceUnavail, "turn cancelled before history was saved")
	}
	if err := o.state.History.Set(ctx, scope, updated); err != nil {
		return err
	}

	tc.finish(OutcomeAnswered)
	return nil
}

func (o *Orchestrator) askSpace(ctx context.Context, turn *Turn, tc *turnContext, question string) error {
	if o.space == nil {
		return o.unavailable(ctx, turn, tc, apperrors.New(apperrors.ErrInvalidParams, "agent space is not configured"))
	}

	scope := turn.conversationScope()
	spaceConv, err := o.state.SpaceConversation.Get(ctx, scope)
	if err != nil {
		return err
	}

	answer, err := o.space.AskSpace(ctx, question, spaceConv, tc.token)
	if err != nil {
		return o.unavailable(ctx, turn, tc, err)
	}

	if err := turn.Sender.SendText(ctx, answer.Result); err != nil {
		return err
	}
	if answer.ConversationID != spaceConv {
		if err := o.state.SpaceConversation.Set(ctx, scope, answer.ConversationID); err != nil {
			return err
		}
	}

	tc.finish(OutcomeAnswered)
	return nil
}

// unavailable logs the failure and tells the user; history is left untouched
func (o *Orchestrator) unavailable(ctx context.Context, turn *Turn, tc *turnContext, cause error) error {
	o.logger.WithContext(ctx).Error("agent call failed",
		zap.Int("code", apperrors.ExtractCode(cause)),
		zap.String("details", apperrors.GetDetails(cause)),
		zap.Error(cause),
	)
	// 超时或取消后仍要通知用户
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unavailableSendTimeout)
	defer cancel()
	if err := turn.Sender.SendText(sendCtx, MsgUnavailable); err != nil {
		return err
	}
	tc.finish(OutcomeUnavailable)
	return nil
}

func (o *Orchestrator) logout(ctx context.Context, turn *Turn) (Outcome, error) {
	if err := turn.Identity.SignOut(ctx); err != nil {
		return OutcomeError, err
	}
	if err := o.state.Dialog.Delete(ctx, turn.conversationScope()); err != nil {
		return OutcomeError, err
	}
	if err := turn.Sender.SendText(ctx, MsgSignedOut); err != nil {
		return OutcomeError, err
	}
	return OutcomeLoggedOut, nil
}

