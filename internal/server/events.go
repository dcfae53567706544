package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/John-Robertt/subfetch/internal/app/run"
)

// EventBus 把 run.Observer 事件广播给 /api/v1/events 的订阅者。
// 订阅者消费过慢时直接丢弃事件，不阻塞下载流程。
type EventBus struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{
		clients: make(map[chan []byte]struct{}),
	}
}

func (e *EventBus) Subscribe() chan []byte {
	ch := make(chan []byte, 16)
	e.mu.Lock()
	e.clients[ch] = struct{}{}
	e.mu.Unlock()
	return ch
}

func (e *EventBus) Unsubscribe(ch chan []byte) {
	e.mu.Lock()
	if _, ok := e.clients[ch]; ok {
		delete(e.clients, ch)
		close(ch)
	}
	e.mu.Unlock()
}

func (e *EventBus) Publish(event string, payload any) {
	raw, err := json.Marshal(map[string]any{
		"event":   event,
		"payload": payload,
	})
	if err != nil {
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for ch := range e.clients {
		select {
		case ch <- raw:
		default:
		}
	}
}

func (e *EventBus) OnStart(runID string, req run.Request, providers []string) {
	e.Publish("run.started", map[string]any{
		"run_id":    runID,
		"query":     req.Query,
		"language":  string(req.Options.Language),
		"providers": providers,
	})
}

func (e *EventBus) OnStage(provider, stage string, fields map[string]any, dur time.Duration) {
	e.Publish("run.stage", map[string]any{
		"provider":    provider,
		"stage":       stage,
		"fields":      fields,
		"duration_ms": dur.Milliseconds(),
	})
}

func (e *EventBus) OnAttemptDone(a run.Attempt, dur time.Duration) {
	payload := map[string]any{
		"provider":    a.Provider,
		"ok":          a.Err == nil,
		"duration_ms": dur.Milliseconds(),
	}
	if a.Err != nil {
		payload["kind"] = a.Kind
		payload["error"] = a.Err.Error()
	}
	e.Publish("run.attempt", payload)
}
