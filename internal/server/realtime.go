package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventSignatureSigned   = "signature-signed"
	RealtimeEventSignatureVerified = "signature-verified"
	RealtimeEventSignatureRevoked  = "signature-revoked"
	RealtimeEventVersionsChanged   = "versions-changed"
	RealtimeEventAutoSaveChanged   = "autosave-changed"
	realtimeEventHeartbeat         = "heartbeat"
	realtimeSourceBackend          = "contracts-backend"
	defaultRealtimeBufferSize      = 16
)

// RealtimeMessage announces a change to the signatures or versions of one document.
type RealtimeMessage struct {
	DocumentID  string
	EventType   string
	SignatureID string
	VersionIDs  []string
	Verified    *bool
	Timestamp   time.Time
}

// RealtimeDispatcher fans messages out to the subscribers of a document. Slow
// subscribers miss messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  defaultRealtimeBufferSize,
	}
}

// Subscribe registers a stream for documentID until ctx ends or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, documentID string) (<-chan RealtimeMessage, func()) {
	if documentID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(documentID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(documentID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.DocumentID == "" || message.EventType == "" {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers[message.DocumentID] {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) subscriberCount(documentID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[documentID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(documentID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[documentID]; !ok {
		d.subscribers[documentID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[documentID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(documentID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[documentID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, documentID)
		}
	}
	d.mu.Unlock()
}
