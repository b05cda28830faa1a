package pipeline

import (
	"sync"

	"StoryToVideo-client/models"
)

// ReplaceHook 观察每一次发布的快照。钩子按写入顺序在快照锁之外执行，
// 钩子内不得再写 arena
type ReplaceHook func(models.Project)

// Arena 每个项目 id 保存一份不可变快照。观察者只持有 id，通过 Get / Watch 读取；
// 所有写入都经过 Put 或 Update 并发布新快照
type Arena struct {
	tracker Tracker

	mu        sync.RWMutex
	projects  map[string]models.Project
	watchers  map[string]map[int]chan models.Project
	nextWatch int

	// 释放 mu 之前先拿 publishMu，保证钩子按写入顺序看到快照
	publishMu sync.Mutex
	hookMu    sync.RWMutex
	hooks     []ReplaceHook
}

func NewArena(tracker Tracker) *Arena {
	return &Arena{
		tracker:  tracker,
		projects: make(map[string]models.Project),
		watchers: make(map[string]map[int]chan models.Project),
	}
}

// Tracker 刷新快照所用的阶段追踪器
func (a *Arena) Tracker() Tracker {
	return a.tracker
}

// OnReplace 注册快照替换钩子
func (a *Arena) OnReplace(hook ReplaceHook) {
	a.hookMu.Lock()
	defer a.hookMu.Unlock()
	a.hooks = append(a.hooks, hook)
}

// Get 返回当前快照的私有副本
func (a *Arena) Get(id string) (models.Project, bool) {
	a.mu.RLock()
	p, ok := a.projects[id]
	a.mu.RUnlock()
	if !ok {
		return models.Project{}, false
	}
	return p.Clone(), true
}

// IDs 当前持有的项目
func (a *Arena) IDs() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.projects))
	for id := range a.projects {
		ids = append(ids, id)
	}
	return ids
}

// Put 以 p 作为 p.ID 的快照发布，覆盖旧快照
func (a *Arena) Put(p models.Project) models.Project {
	next := a.tracker.Refresh(p.Clone())
	a.mu.Lock()
	a.projects[next.ID] = next
	a.commit(next)
	return next.Clone()
}

// Update 在当前快照的副本上执行 fn 并发布结果。fn 返回错误时不写入；
// 项目已删除或关闭时返回 ErrNotFound
func (a *Arena) Update(id string, fn func(models.Project) (models.Project, error)) (models.Project, error) {
	a.mu.Lock()
	cur, ok := a.projects[id]
	if !ok {
		a.mu.Unlock()
		return models.Project{}, Wrap(ErrNotFound, "", "update", id, nil)
	}
	next, err := fn(cur.Clone())
	if err != nil {
		a.mu.Unlock()
		return cur.Clone(), err
	}
	next.ID = id
	next = a.tracker.Refresh(next)
	a.projects[id] = next
	a.commit(next)
	return next.Clone(), nil
}

// Delete 丢弃快照并关闭其观察通道，之后对该 id 的更新返回 ErrNotFound
func (a *Arena) Delete(id string) bool {
	a.mu.Lock()
	_, ok := a.projects[id]
	delete(a.projects, id)
	ws := a.watchers[id]
	delete(a.watchers, id)
	a.mu.Unlock()
	for _, ch := range ws {
		close(ch)
	}
	return ok
}

// Watch 返回始终持有最新快照的通道；项目删除或调用 cancel 时关闭
func (a *Arena) Watch(id string) (<-chan models.Project, func()) {
	ch := make(chan models.Project, 1)
	a.mu.Lock()
	a.nextWatch++
	key := a.nextWatch
	if a.watchers[id] == nil {
		a.watchers[id] = make(map[int]chan models.Project)
	}
	a.watchers[id][key] = ch
	if p, ok := a.projects[id]; ok {
		ch <- p.Clone()
	}
	a.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			a.mu.Lock()
			ws, ok := a.watchers[id]
			if ok {
				if _, live := ws[key]; live {
					delete(ws, key)
					close(ch)
				}
				if len(ws) == 0 {
					delete(a.watchers, id)
				}
			}
			a.mu.Unlock()
		})
	}
	return ch, cancel
}

// commit 调用时必须持有 a.mu，并由它释放。观察通道在锁内收到快照，钩子在锁外
func (a *Arena) commit(p models.Project) {
	for _, ch := range a.watchers[p.ID] {
		offerLatest(ch, p.Clone())
	}
	a.publishMu.Lock()
	a.mu.Unlock()
	defer a.publishMu.Unlock()

	a.hookMu.RLock()
	hooks := append([]ReplaceHook(nil), a.hooks...)
	a.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(p.Clone())
	}
}

// offerLatest 非阻塞地用 p 替换缓冲中的旧值
func offerLatest(ch chan models.Project, p models.Project) {
	select {
	case ch <- p:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}
