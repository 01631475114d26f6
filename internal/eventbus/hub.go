package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// 事件类型
const (
	TypeLevelUp      = "level_up"
	TypeSyncFinished = "sync_finished"
)

type Event struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	EntityID  string         `json:"entity_id,omitempty"`
	Skill     string         `json:"skill,omitempty"`
	Level     int            `json:"level,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// LevelUp 构造升级事件
func LevelUp(entityID, skill string, level int) Event {
	return Event{Type: TypeLevelUp, EntityID: entityID, Skill: skill, Level: level}
}

// Hub 进程内事件广播；发布从不阻塞
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// 慢消费者直接丢弃；待同步标记仍在库中，定时任务会补推
			h.dropped.Add(1)
		}
	}
}

// Dropped 因订阅方缓冲已满而丢弃的事件数
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}

func (h *Hub) Subscribe(ctx context.Context, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
		close(ch)
	}()

	return ch
}
