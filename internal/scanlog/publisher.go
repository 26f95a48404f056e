package scanlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Producer is the broker-facing side of the fan-out.
type Producer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Publisher fans persisted audit entries out to the event stream. Delivery is
// best-effort and decoupled from the scan path: the store append already
// happened by the time an entry is enqueued, so a full buffer or broker
// outage costs an event, never an audit record.
type Publisher struct {
	producer Producer
	logger   *slog.Logger
	ch       chan Entry
	wg       sync.WaitGroup
}

const publishTimeout = 5 * time.Second

// NewPublisher starts the drain goroutine. The producer may be nil, in which
// case Enqueue is a no-op; callers never need to branch on wiring.
func NewPublisher(producer Producer, logger *slog.Logger, buffer int) *Publisher {
	p := &Publisher{producer: producer, logger: logger}
	if producer == nil {
		return p
	}
	if buffer <= 0 {
		buffer = 256
	}
	p.ch = make(chan Entry, buffer)
	p.wg.Add(1)
	go p.drain()
	return p
}

// Enqueue hands an entry to the drain goroutine without blocking the scan
// path. Drops the entry when the buffer is full.
func (p *Publisher) Enqueue(e Entry) {
	if p == nil || p.ch == nil {
		return
	}
	select {
	case p.ch <- e:
	default:
		p.logger.Warn("scan event buffer full, dropping event", "entry_id", e.ID)
	}
}

// Close stops accepting entries, flushes the buffer, and waits for the drain
// goroutine to finish.
func (p *Publisher) Close() {
	if p == nil || p.ch == nil {
		return
	}
	close(p.ch)
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for e := range p.ch {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.publish(ctx, e); err != nil {
			p.logger.Error("publish scan event", "entry_id", e.ID, "error", err)
		}
		cancel()
	}
}

// scanEvent is the stream wire shape. The raw payload stays out of the
// event; consumers that need it read the store.
type scanEvent struct {
	ID            string `json:"id"`
	ScannerUserID string `json:"scanner_user_id,omitempty"`
	CredentialID  string `json:"credential_id,omitempty"`
	Outcome       string `json:"outcome"`
	Detail        string `json:"detail,omitempty"`
	ClientIP      string `json:"client_ip,omitempty"`
	ScannedAt     string `json:"scanned_at"`
}

func (p *Publisher) publish(ctx context.Context, e Entry) error {
	event := scanEvent{
		ID:        e.ID.String(),
		Outcome:   e.Outcome,
		Detail:    e.Detail,
		ClientIP:  e.ClientIP,
		ScannedAt: e.At.UTC().Format(time.RFC3339Nano),
	}
	if e.ScannerUserID != nil {
		event.ScannerUserID = e.ScannerUserID.String()
	}
	if e.CredentialID != nil {
		event.CredentialID = e.CredentialID.String()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, event.ID, value)
}
