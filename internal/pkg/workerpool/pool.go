package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Config Worker Pool 配置
type Config struct {
	Workers  int `mapstructure:"workers"`   // ants 协程数上限
	MaxQueue int `mapstructure:"max_queue"` // 单个 key 允许排队的最大任务数，0 表示不限制
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:  64,
		MaxQueue: 16,
	}
}

// Statistics 任务统计
type Statistics struct {
	Submitted int64
	Completed int64
	Failed    int64 // panic 的任务
	Rejected  int64
}

// keyQueue 同一个 key 的待执行任务，按提交顺序串行执行
type keyQueue struct {
	tasks   []func()
	running bool
}

// Pool 基于 ants 的协程池。
// SubmitKeyed 保证同一 key 的任务 FIFO 且不并发。
type Pool struct {
	pool   *ants.Pool
	submit func(task func()) error
	config *Config
	logger *zap.Logger

	mu     sync.Mutex
	queues map[string]*keyQueue
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// New 创建 Worker Pool
func New(cfg *Config, logger *zap.Logger) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0, got %d", cfg.Workers)
	}

	p := &Pool{
		config: cfg,
		logger: logger,
		queues: make(map[string]*keyQueue),
	}

	antsPool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool
	p.submit = antsPool.Submit

	return p, nil
}

// SubmitKeyed 提交按 key 串行的任务
func (p *Pool) SubmitKeyed(key string, task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.rejected.Add(1)
		return ErrPoolClosed
	}

	q, ok := p.queues[key]
	if !ok {
		q = &keyQueue{}
		p.queues[key] = q
	}
	if p.config.MaxQueue > 0 && len(q.tasks) >= p.config.MaxQueue {
		p.mu.Unlock()
		p.rejected.Add(1)
		return fmt.Errorf("queue for key %q is full", key)
	}

	pos := len(q.tasks)
	q.tasks = append(q.tasks, task)
	p.submitted.Add(1)
	p.wg.Add(1)
	if q.running {
		p.mu.Unlock()
		return nil
	}
	q.running = true
	p.mu.Unlock()

	if err := p.submit(func() { p.drain(key) }); err != nil {
		// 只撤回本次任务，期间被接受的同 key 任务仍需执行
		p.mu.Lock()
		q.tasks = append(q.tasks[:pos], q.tasks[pos+1:]...)
		pending := len(q.tasks) > 0
		if !pending {
			q.running = false
			delete(p.queues, key)
		}
		p.mu.Unlock()

		p.wg.Done()
		p.rejected.Add(1)
		if pending {
			go p.drain(key)
		}
		return fmt.Errorf("submit task: %w", err)
	}
	return nil
}

// drain 依次执行某个 key 下排队的任务，队列为空时退出
func (p *Pool) drain(key string) {
	for {
		p.mu.Lock()
		q := p.queues[key]
		if q == nil || len(q.tasks) == 0 {
			delete(p.queues, key)
			p.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		p.mu.Unlock()

		p.run(task)
		p.wg.Done()
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.logger.Error("worker panic", zap.Any("error", r), zap.Stack("stacktrace"))
			return
		}
		p.completed.Add(1)
	}()
	task()
}

// Stats 返回统计信息
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Shutdown 拒绝新任务并等待已提交任务完成，ctx 到期时直接返回
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.pool.Release()
		return nil
	case <-ctx.Done():
		p.pool.Release()
		return ctx.Err()
	}
}
