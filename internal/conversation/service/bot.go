package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lk2023060901/agent-bridge/internal/botframework"
	"github.com/lk2023060901/agent-bridge/internal/conversation/biz"
	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
	"github.com/lk2023060901/agent-bridge/internal/pkg/metrics"
	"github.com/lk2023060901/agent-bridge/internal/pkg/response"
)

// 出错时发给用户的固定提示
const (
	MsgTurnError = "The bot encountered an error or bug."
	MsgFixSource = "To continue to run this bot, please fix the bot source code."
)

const DefaultWelcome = "Welcome! Send any message to sign in and chat with the agent. Type 'logout' to sign out."

const errorValueType = "https://www.botframework.com/schemas/error"

// TurnRunner 执行单个轮次
type TurnRunner interface {
	RunTurn(ctx context.Context, turn *biz.Turn) (biz.Outcome, error)
}

// Dispatcher 按 key 串行执行任务
type Dispatcher interface {
	SubmitKeyed(key string, task func()) error
}

// Config 传输层配置
type Config struct {
	TurnTimeout time.Duration
	WelcomeText string
	SignInText  string
	SignInTitle string
}

// BotService /api/messages 入口
type BotService struct {
	config     Config
	runner     TurnRunner
	dispatcher Dispatcher
	connector  Connector
	tokens     UserTokenClient
	logger     *logger.Logger
	metrics    *metrics.Metrics

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewBotService 创建服务；Close 会取消所有进行中的轮次
func NewBotService(
	cfg Config,
	runner TurnRunner,
	dispatcher Dispatcher,
	connector Connector,
	tokens UserTokenClient,
	log *logger.Logger,
	m *metrics.Metrics,
) *BotService {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 6 * time.Minute
	}
	if cfg.WelcomeText == "" {
		cfg.WelcomeText = DefaultWelcome
	}
	if log == nil {
		log = logger.L()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BotService{
		config:     cfg,
		runner:     runner,
		dispatcher: dispatcher,
		connector:  connector,
		tokens:     tokens,
		logger:     log.Named("bot"),
		metrics:    m,
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// RegisterRoutes 注册路由
func (s *BotService) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/messages", s.Messages)
}

// Close 取消进行中的轮次
func (s *BotService) Close() {
	s.cancel()
}

// Messages 处理 Bot Framework 推送的 activity
func (s *BotService) Messages(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		response.ErrorWithCode(c, apperrors.ErrUnsupportedType, contentType)
		return
	}

	var act botframework.Activity
	if err := c.ShouldBindJSON(&act); err != nil {
		response.ErrorWithCode(c, apperrors.ErrInvalidParams, err.Error())
		return
	}

	s.metrics.RecordActivity(act.Type)
	s.logger.WithContext(c.Request.Context()).Info("incoming activity",
		zap.String("type", act.Type),
		zap.String("name", act.Name),
		zap.String("channel_id", act.ChannelID),
	)

	switch {
	case act.Type == botframework.ActivityTypeMessage:
		s.handleMessage(c, &act)
	case act.IsVerifyState():
		s.handleVerifyState(c, &act)
	case act.Type == botframework.ActivityTypeConversationUpdate:
		s.handleConversationUpdate(c, &act)
	case act.Type == botframework.ActivityTypeInvoke:
		c.Status(http.StatusNotImplemented)
	default:
		c.Status(http.StatusOK)
	}
}

func (s *BotService) handleMessage(c *gin.Context, act *botframework.Activity) {
	turn := s.newTurn(act, biz.EventMessage)
	if err := s.dispatch(c.Request.Context(), act, turn, nil); err != nil {
		response.HandleError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// handleVerifyState 同步等待轮次完成后返回 invoke 响应
func (s *BotService) handleVerifyState(c *gin.Context, act *botframework.Activity) {
	turn := s.newTurn(act, biz.EventVerifyState)
	turn.Code = act.VerifyStateCode()

	done := make(chan struct{})
	if err := s.dispatch(c.Request.Context(), act, turn, done); err != nil {
		response.HandleError(c, err)
		return
	}

	select {
	case <-done:
	case <-c.Request.Context().Done():
	}
	c.Status(http.StatusOK)
}

func (s *BotService) handleConversationUpdate(c *gin.Context, act *botframework.Activity) {
	ctx := c.Request.Context()
	ref := act.Reference()
	for _, member := range act.MembersAdded {
		if member.ID == act.Recipient.ID {
			continue
		}
		if _, err := s.connector.SendActivity(ctx, botframework.NewText(ref, s.config.WelcomeText)); err != nil {
			s.logger.WithContext(ctx).Error("failed to send welcome message", zap.Error(err))
			response.HandleError(c, err)
			return
		}
	}
	c.Status(http.StatusOK)
}

func (s *BotService) newTurn(act *botframework.Activity, event biz.Event) *biz.Turn {
	sender := &channelSender{connector: s.connector, ref: act.Reference()}
	return &biz.Turn{
		ChannelID:      act.ChannelID,
		ConversationID: act.Conversation.ID,
		UserID:         act.From.ID,
		Event:          event,
		Text:           act.Text,
		Sender:         sender,
		Identity: &signInIdentity{
			tokens: s.tokens,
			sender: sender,
			text:   s.config.SignInText,
			title:  s.config.SignInTitle,
		},
	}
}

// dispatch 把轮次交给 worker pool，同一会话按到达顺序执行；done 非空时在轮次结束后关闭
func (s *BotService) dispatch(reqCtx context.Context, act *botframework.Activity, turn *biz.Turn, done chan struct{}) error {
	requestID := logger.GetRequestID(reqCtx)
	key := turn.ChannelID + "/" + turn.ConversationID

	err := s.dispatcher.SubmitKeyed(key, func() {
		if done != nil {
			defer close(done)
		}

		ctx, cancel := context.WithTimeout(s.baseCtx, s.config.TurnTimeout)
		defer cancel()
		ctx = logger.WithRequestID(ctx, requestID)
		ctx = logger.WithConversationID(ctx, turn.ConversationID)
		ctx = logger.WithUserID(ctx, turn.UserID)

		if _, err := s.runner.RunTurn(ctx, turn); err != nil {
			s.onTurnError(ctx, act, err)
		}
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrServiceUnavail, "dispatch turn")
	}
	return nil
}

// onTurnError 轮次内未处理的错误：记录日志并通知用户
func (s *BotService) onTurnError(ctx context.Context, act *botframework.Activity, turnErr error) {
	s.logger.WithContext(ctx).Error("unhandled turn error",
		zap.Int("code", apperrors.ExtractCode(turnErr)),
		zap.Error(turnErr),
	)

	// 轮次可能已超时，通知用另一个 context
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	ref := act.Reference()
	activities := []*botframework.Activity{
		botframework.NewText(ref, MsgTurnError),
		botframework.NewText(ref, MsgFixSource),
	}
	if act.ChannelID == botframework.ChannelEmulator {
		activities = append(activities, botframework.NewTrace(ref, "on_turn_error Trace", "TurnError", errorValueType, turnErr.Error()))
	}

	for _, out := range activities {
		if _, err := s.connector.SendActivity(sendCtx, out); err != nil {
			s.logger.WithContext(ctx).Warn("failed to report turn error", zap.Error(err))
			return
		}
	}
}
