package service

import (
	"context"

	"github.com/lk2023060901/agent-bridge/internal/botframework"
)

// Connector 发送出站 activity
type Connector interface {
	SendActivity(ctx context.Context, act *botframework.Activity) (string, error)
}

// UserTokenClient Bot Framework token 服务
type UserTokenClient interface {
	GetUserToken(ctx context.Context, ref botframework.ConversationReference, code string) (*botframework.TokenResponse, error)
	GetSignInURL(ctx context.Context, ref botframework.ConversationReference) (string, error)
	SignOut(ctx context.Context, ref botframework.ConversationReference) error
	ConnectionName() string
}

// channelSender 把回复发回入站 activity 所在的会话
type channelSender struct {
	connector Connector
	ref       botframework.ConversationReference
}

func (s *channelSender) SendText(ctx context.Context, text string) error {
	return s.send(ctx, botframework.NewText(s.ref, text))
}

func (s *channelSender) SendToolCall(ctx context.Context, name, arguments, output string) error {
	return s.send(ctx, botframework.NewAttachment(s.ref, botframework.ToolCallCard(name, arguments, output)))
}

func (s *channelSender) send(ctx context.Context, act *botframework.Activity) error {
	_, err := s.connector.SendActivity(ctx, act)
	return err
}

// signInIdentity 绑定到当前用户的登录流程
type signInIdentity struct {
	tokens UserTokenClient
	sender *channelSender
	text   string
	title  string
}

func (i *signInIdentity) GetToken(ctx context.Context, code string) (string, error) {
	tr, err := i.tokens.GetUserToken(ctx, i.sender.ref, code)
	if err != nil || tr == nil {
		return "", err
	}
	return tr.Token, nil
}

func (i *signInIdentity) PromptSignIn(ctx context.Context) error {
	link, err := i.tokens.GetSignInURL(ctx, i.sender.ref)
	if err != nil {
		return err
	}
	card := botframework.SignInCard(i.tokens.ConnectionName(), i.text, i.title, link)
	return i.sender.send(ctx, botframework.NewAttachment(i.sender.ref, card))
}

func (i *signInIdentity) SignOut(ctx context.Context) error {
	return i.tokens.SignOut(ctx, i.sender.ref)
}
