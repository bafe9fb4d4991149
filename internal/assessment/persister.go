package assessment

import (
	"context"
	"sync"
	"time"
)

const defaultSaveTimeout = 10 * time.Second

// persister serializes snapshot writes on one goroutine. Records carry the
// full state, so only the newest pending record is ever written.
type persister struct {
	store   Storage
	timeout time.Duration
	onSaved func(Record)
	onError func(error)

	mu      sync.Mutex
	pending *Record

	wake     chan struct{}
	flushes  chan chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newPersister(store Storage, timeout time.Duration, onSaved func(Record), onError func(error)) *persister {
	if timeout <= 0 {
		timeout = defaultSaveTimeout
	}
	p := &persister{
		store:   store,
		timeout: timeout,
		onSaved: onSaved,
		onError: onError,
		wake:    make(chan struct{}, 1),
		flushes: make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *persister) enqueue(record Record) {
	p.mu.Lock()
	if p.pending == nil || record.Version > p.pending.Version {
		p.pending = &record
	}
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// discard drops a queued record that has not started writing yet.
func (p *persister) discard() {
	p.mu.Lock()
	p.pending = nil
	p.mu.Unlock()
}

func (p *persister) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.wake:
			p.drain()
		case ack := <-p.flushes:
			p.drain()
			close(ack)
		case <-p.stop:
			p.drain()
			return
		}
	}
}

func (p *persister) drain() {
	for {
		p.mu.Lock()
		record := p.pending
		p.pending = nil
		p.mu.Unlock()
		if record == nil {
			return
		}
		p.write(*record)
	}
}

func (p *persister) write(record Record) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.store.SaveAssessment(ctx, record); err != nil {
		if p.onError != nil {
			p.onError(err)
		}
		return
	}
	if p.onSaved != nil {
		p.onSaved(record)
	}
}

// flush blocks until every record queued before the call has been written.
func (p *persister) flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case p.flushes <- ack:
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *persister) close(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stop) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
