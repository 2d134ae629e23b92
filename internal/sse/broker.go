// Package sse implements a Server-Sent Events broker for manuscript change
// notifications.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Event types emitted by the broker.
const (
	TypeChapterCreated    = "chapter.created"
	TypeChapterUpdated    = "chapter.updated"
	TypeChapterDeleted    = "chapter.deleted"
	TypeManuscriptUpdated = "manuscript.updated"
	TypeExportCompleted   = "export.completed"
)

// ChapterPayload is the data of a chapter.* event. Title is empty for
// changes picked up from disk.
type ChapterPayload struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// ManuscriptPayload is the data of a manuscript.updated event. Changed lists
// the chapters touched since the previous manuscript.updated, oldest first.
type ManuscriptPayload struct {
	Changed []string `json:"changed"`
}

// ExportPayload is the data of an export.completed event. Path is empty for
// exports streamed to a writer.
type ExportPayload struct {
	Format string `json:"format"`
	Path   string `json:"path,omitempty"`
}

type chapterEventReq struct {
	kind    string
	payload ChapterPayload
}

func chapterEventType(kind string) string {
	switch kind {
	case "created":
		return TypeChapterCreated
	case "updated":
		return TypeChapterUpdated
	case "deleted":
		return TypeChapterDeleted
	default:
		return ""
	}
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, the manuscript throttle timestamp and the chapters changed since
// the last manuscript.updated). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	manuscriptMin time.Duration

	subscribeCh    chan chan []byte
	unsubscribeCh  chan chan []byte
	publishCh      chan Event
	chapterEventCh chan chapterEventReq
	countReqCh     chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. manuscriptThrottle is the minimum gap
// between two manuscript.updated events.
func NewBroker(manuscriptThrottle time.Duration) *Broker {
	if manuscriptThrottle <= 0 {
		manuscriptThrottle = 2 * time.Second
	}

	b := &Broker{
		manuscriptMin:  manuscriptThrottle,
		subscribeCh:    make(chan chan []byte),
		unsubscribeCh:  make(chan chan []byte),
		publishCh:      make(chan Event, 256),
		chapterEventCh: make(chan chapterEventReq, 256),
		countReqCh:     make(chan chan int),
		stopCh:         make(chan struct{}),
		stopped:        make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastManuscript time.Time
	changed := []string{}

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.chapterEventCh:
			if typ := chapterEventType(req.kind); typ != "" {
				broadcast(Event{Type: typ, Data: req.payload})
				if !slices.Contains(changed, req.payload.ID) {
					changed = append(changed, req.payload.ID)
				}
			}

			now := time.Now()
			if now.Sub(lastManuscript) >= b.manuscriptMin {
				lastManuscript = now
				broadcast(Event{Type: TypeManuscriptUpdated, Data: ManuscriptPayload{Changed: changed}})
				changed = []string{}
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishChapterEvent publishes a chapter change (kind is created, updated or
// deleted) and a throttled manuscript.updated event. Unknown kinds only count
// towards the throttle.
func (b *Broker) PublishChapterEvent(kind, id, title string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.chapterEventCh <- chapterEventReq{kind: kind, payload: ChapterPayload{ID: id, Title: title}}:
	case <-b.stopped:
	}
}

// PublishFileEvent is PublishChapterEvent for changes seen by the chapter
// watcher, which carry no title. It matches index.EventCallback.
func (b *Broker) PublishFileEvent(kind, id string) {
	b.PublishChapterEvent(kind, id, "")
}

// PublishManuscriptEvent publishes a throttled manuscript.updated event for
// structure changes that touch no single chapter.
func (b *Broker) PublishManuscriptEvent() {
	b.PublishChapterEvent("", "", "")
}

// PublishExport announces a finished export.
func (b *Broker) PublishExport(format, path string) {
	b.Publish(Event{Type: TypeExportCompleted, Data: ExportPayload{Format: format, Path: path}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
