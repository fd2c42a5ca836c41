package biz

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/lk2023060901/agent-bridge/internal/conversation/types"
	"github.com/lk2023060901/agent-bridge/internal/serving"
)

type mapStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failSet error
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string][]byte)}
}

func (s *mapStore) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (s *mapStore) Set(_ context.Context, key string, value interface{}) error {
	if s.failSet != nil {
		return s.failSet
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return nil
}

func (s *mapStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

type sent struct {
	text string
	tool []string // name, arguments, output
}

type recordingSender struct {
	sent []sent
	err  error
	// 模拟真实连接器：ctx 已结束时发送失败
	checkCtx bool
}

func (s *recordingSender) SendText(ctx context.Context, text string) error {
	if s.err != nil {
		return s.err
	}
	if s.checkCtx && ctx.Err() != nil {
		return ctx.Err()
	}
	s.sent = append(s.sent, sent{text: text})
	return nil
}

func (s *recordingSender) SendToolCall(_ context.Context, name, arguments, output string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sent{tool: []string{name, arguments, output}})
	return nil
}

func (s *recordingSender) texts() []string {
	var out []string
	for _, m := range s.sent {
		if m.tool == nil {
			out = append(out, m.text)
		}
	}
	return out
}

type fakeIdentity struct {
	cached   string            // token returned without a code
	byCode   map[string]string // code -> token
	prompts  int
	signOuts int
	codes    []string
}

func (f *fakeIdentity) GetToken(_ context.Context, code string) (string, error) {
	f.codes = append(f.codes, code)
	if code != "" {
		if tok, ok := f.byCode[code]; ok {
			return tok, nil
		}
	}
	return f.cached, nil
}

func (f *fakeIdentity) PromptSignIn(context.Context) error {
	f.prompts++
	return nil
}

func (f *fakeIdentity) SignOut(context.Context) error {
	f.signOuts++
	f.cached = ""
	return nil
}

type invocation struct {
	utterance string
	history   []types.Message
	token     string
}

type fakeEndpoint struct {
	out      []types.Message
	err      error
	calls    []invocation
	onInvoke func()
}

func (f *fakeEndpoint) Invoke(_ context.Context, utterance string, history []types.Message, token string) ([]types.Message, error) {
	f.calls = append(f.calls, invocation{utterance: utterance, history: history, token: token})
	if f.onInvoke != nil {
		f.onInvoke()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeSpace struct {
	answer *serving.SpaceAnswer
	err    error
	convs  []string
}

func (f *fakeSpace) AskSpace(_ context.Context, question, conversationID, token string) (*serving.SpaceAnswer, error) {
	f.convs = append(f.convs, conversationID)
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

var errBoom = errors.New("boom")
