package biz

import (
	"context"
	"time"

	"github.com/lk2023060901/agent-bridge/internal/conversation/types"
	apperrors "github.com/lk2023060901/agent-bridge/internal/pkg/errors"
)

// Store defines the keyed JSON state store implemented by the data layer
type Store interface {
	// Get decodes the value stored under key into dst; found is false when the key is absent
	Get(ctx context.Context, key string, dst interface{}) (found bool, err error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}

// Property is a typed accessor for one named value inside a scope
type Property[T any] struct {
	store Store
	name  string
}

// NewProperty creates a property accessor
func NewProperty[T any](store Store, name string) *Property[T] {
	return &Property[T]{store: store, name: name}
}

func (p *Property[T]) key(scope string) string {
	return scope + "/" + p.name
}

// Get returns the stored value or the zero value of T when absent
func (p *Property[T]) Get(ctx context.Context, scope string) (T, error) {
	var v T
	if _, err := p.store.Get(ctx, p.key(scope), &v); err != nil {
		var zero T
		return zero, apperrors.Wrapf(err, apperrors.ErrStateStore, "get %s", p.key(scope))
	}
	return v, nil
}

// Set stores the value
func (p *Property[T]) Set(ctx context.Context, scope string, v T) error {
	if err := p.store.Set(ctx, p.key(scope), v); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrStateStore, "set %s", p.key(scope))
	}
	return nil
}

// Delete removes the value
func (p *Property[T]) Delete(ctx context.Context, scope string) error {
	if err := p.store.Delete(ctx, p.key(scope)); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrStateStore, "delete %s", p.key(scope))
	}
	return nil
}

// DialogState 会话内进行中的登录提示
type DialogState struct {
	SignInPending bool      `json:"sign_in_pending"`
	PromptedAt    time.Time `json:"prompted_at"`
}

// State groups the persisted properties of the bot
type State struct {
	LoginFlag         *Property[bool]            // user scope
	History           *Property[[]types.Message] // conversation scope
	Dialog            *Property[DialogState]     // conversation scope
	SpaceConversation *Property[string]          // conversation scope
}

// NewState creates the property accessors on top of store
func NewState(store Store) *State {
	return &State{
		LoginFlag:         NewProperty[bool](store, "has_logged_in"),
		History:           NewProperty[[]types.Message](store, "history"),
		Dialog:            NewProperty[DialogState](store, "dialog_state"),
		SpaceConversation: NewProperty[string](store, "space_conversation_id"),
	}
}

// UserScope 用户级状态的 key 前缀
func UserScope(channelID, userID string) string {
	return channelID + "/users/" + userID
}

// ConversationScope 会话级状态的 key 前缀
func ConversationScope(channelID, conversationID string) string {
	return channelID + "/conversations/" + conversationID
}
