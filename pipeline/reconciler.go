package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"StoryToVideo-client/models"
)

// Stream 单个项目的推送连接
type Stream interface {
	// Next 阻塞直到收到消息、ctx 结束或连接关闭
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, projectID string) (Stream, error)
}

// Reconciler 把推送的项目片段合并进 arena；同一项目按到达顺序逐条合并
type Reconciler struct {
	arena    *Arena
	dialer   Dialer
	logger   *slog.Logger
	recorder Recorder

	mu   sync.Mutex
	subs map[string]*Subscription
}

func NewReconciler(arena *Arena, dialer Dialer, logger *slog.Logger, recorder Recorder) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Reconciler{
		arena:    arena,
		dialer:   dialer,
		logger:   logger.With("component", "reconciler"),
		recorder: recorder,
		subs:     make(map[string]*Subscription),
	}
}

// Subscription 单个项目的活动推送订阅
type Subscription struct {
	projectID string
	stream    Stream
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
	owner     *Reconciler
}

func (s *Subscription) ProjectID() string {
	return s.projectID
}

// Done 读循环退出后关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close 停止读循环并等待其退出；返回后不会再有该订阅的合并
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.stream.Close()
		<-s.done
		s.owner.forget(s)
	})
	return err
}

// Subscribe 打开项目的推送通道；已有订阅时直接返回
func (r *Reconciler) Subscribe(ctx context.Context, projectID string) (*Subscription, error) {
	if _, ok := r.arena.Get(projectID); !ok {
		return nil, Wrap(ErrNotFound, "", "subscribe", projectID, nil)
	}
	r.mu.Lock()
	if sub, ok := r.subs[projectID]; ok {
		r.mu.Unlock()
		return sub, nil
	}
	r.mu.Unlock()

	stream, err := r.dialer.Dial(ctx, projectID)
	if err != nil {
		return nil, Wrap(ErrNetwork, "", "subscribe", projectID, err)
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		projectID: projectID,
		stream:    stream,
		cancel:    cancel,
		done:      make(chan struct{}),
		owner:     r,
	}

	r.mu.Lock()
	if existing, ok := r.subs[projectID]; ok {
		r.mu.Unlock()
		cancel()
		_ = stream.Close()
		return existing, nil
	}
	r.subs[projectID] = sub
	r.mu.Unlock()

	go r.loop(loopCtx, sub)
	r.logger.Info("push channel opened", "project_id", projectID)
	return sub, nil
}

// Unsubscribe 幂等：没有订阅时什么也不做
func (r *Reconciler) Unsubscribe(projectID string) error {
	r.mu.Lock()
	sub, ok := r.subs[projectID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return sub.Close()
}

// Close 关闭所有订阅
func (r *Reconciler) Close() {
	r.mu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.Unlock()
	for _, sub := range subs {
		_ = sub.Close()
	}
}

func (r *Reconciler) forget(sub *Subscription) {
	r.mu.Lock()
	if r.subs[sub.projectID] == sub {
		delete(r.subs, sub.projectID)
	}
	r.mu.Unlock()
}

func (r *Reconciler) loop(ctx context.Context, sub *Subscription) {
	defer close(sub.done)
	for {
		data, err := sub.stream.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warn("push channel closed", "project_id", sub.projectID, "error", err)
			}
			// 连接断开后释放位置，之后的 Subscribe 可以重新拨号
			go r.forget(sub)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := r.Apply(sub.projectID, data); err != nil {
			if errors.Is(err, ErrStaleMerge) {
				r.logger.Debug("push update dropped", "project_id", sub.projectID)
				continue
			}
			r.logger.Warn("push update rejected", "project_id", sub.projectID, "error", err)
		}
	}
}

// Apply 解码并合并一条推送消息。其他类型的消息忽略；
// 项目已不在 arena 中时返回 ErrStaleMerge
func (r *Reconciler) Apply(projectID string, data []byte) error {
	var msg PushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		r.recorder.PushDropped("decode")
		return fmt.Errorf("decode push message: %w", err)
	}
	if msg.Type != MessageProjectUpdate {
		r.recorder.PushDropped("ignored_type")
		return nil
	}
	fragment, err := ParseFragment(msg.Project)
	if err != nil {
		r.recorder.PushDropped("decode")
		return err
	}
	_, err = r.arena.Update(projectID, func(p models.Project) (models.Project, error) {
		return MergeFragment(p, fragment)
	})
	if errors.Is(err, ErrNotFound) {
		r.recorder.PushDropped("stale")
		return ErrStaleMerge
	}
	if err != nil {
		r.recorder.PushDropped("merge")
		return fmt.Errorf("merge push update: %w", err)
	}
	r.recorder.PushMerged()
	return nil
}
