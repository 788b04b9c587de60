// Package sse streams table changes to clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	EventDatabaseUpdated = "database.updated"
	EventRowsUpdated     = "rows.updated"
	EventPersistFailed   = "persist.failed"
	EventTableRefresh    = "table.refresh"
)

// DatabaseParam is the query parameter that narrows a stream to one
// database.
const DatabaseParam = "database"

const (
	clientBuffer      = 64
	retryMillis       = 3000
	heartbeatInterval = 25 * time.Second
)

// Event is one message on the stream. Events with a Database reach the
// clients watching that database and the clients watching everything;
// events without one reach every client.
type Event struct {
	Type     string `json:"type"`
	Database string `json:"-"`
	Data     any    `json:"data"`
}

// Change is the payload of database.updated and rows.updated.
type Change struct {
	Database string `json:"database"`
	Op       string `json:"op"`
	Path     string `json:"path,omitempty"`
}

type subscription struct {
	ch       chan []byte
	database string
}

// Broker fans events out to subscribed clients.
//
// A single loop goroutine owns the client set, the event sequence and the
// per-database refresh timestamps. Public methods talk to it over channels.
type Broker struct {
	refreshMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. table.refresh is sent at most once per
// refreshThrottle for each database.
func NewBroker(refreshThrottle time.Duration) *Broker {
	if refreshThrottle <= 0 {
		refreshThrottle = 2 * time.Second
	}

	b := &Broker{
		refreshMin:    refreshThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	lastRefresh := make(map[string]time.Time)
	var seq uint64

	send := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		for ch, database := range clients {
			if database != "" && event.Database != "" && database != event.Database {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall every other stream.
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

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.database

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			send(event)
			if event.Type != EventDatabaseUpdated && event.Type != EventRowsUpdated {
				continue
			}
			now := time.Now()
			if now.Sub(lastRefresh[event.Database]) >= b.refreshMin {
				lastRefresh[event.Database] = now
				send(Event{
					Type:     EventTableRefresh,
					Database: event.Database,
					Data:     map[string]string{"database": event.Database},
				})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client and returns its channel. An empty database
// subscribes to every database.
func (b *Broker) Subscribe(database string) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, database: database}:
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

// Publish queues an event for delivery.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// DatabaseUpdated publishes a change of a database's configuration and a
// throttled table.refresh.
func (b *Broker) DatabaseUpdated(database, op string) {
	b.Publish(Event{
		Type:     EventDatabaseUpdated,
		Database: database,
		Data:     Change{Database: database, Op: op},
	})
}

// RowsUpdated publishes a change of a database's rows and a throttled
// table.refresh.
func (b *Broker) RowsUpdated(database, op, path string) {
	b.Publish(Event{
		Type:     EventRowsUpdated,
		Database: database,
		Data:     Change{Database: database, Op: op, Path: path},
	})
}

// PersistFailed publishes a failed background write of note key to every
// client.
func (b *Broker) PersistFailed(key string, err error) {
	b.Publish(Event{Type: EventPersistFailed, Data: map[string]string{"path": key, "error": err.Error()}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). The optional
// database query parameter narrows the stream to one database.
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
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get(DatabaseParam))
	defer b.Unsubscribe(ch)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
