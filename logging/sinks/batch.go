package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"intersection-sim/server/logging"
)

// BatchFlusher receives a compressed batch once it is flushed. It is the
// sink's only contact with the outside world; production use sends the bytes
// over a network boundary, tests can capture them in a slice.
type BatchFlusher interface {
	FlushBatch(compressed []byte, count int) error
}

// BatchFlusherFunc adapts a function into a BatchFlusher.
type BatchFlusherFunc func(compressed []byte, count int) error

func (f BatchFlusherFunc) FlushBatch(compressed []byte, count int) error {
	if f == nil {
		return nil
	}
	return f(compressed, count)
}

// Batch buffers newline-delimited JSON events and compresses each flushed
// batch with zstd before handing it to the configured flusher. This keeps
// the telemetry event-emission boundary cheap to transmit without reaching
// for a persistence layer (out of scope for the simulation kernel).
type Batch struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	encoder  *json.Encoder
	count    int
	maxBatch int
	flusher  BatchFlusher
	stop     chan struct{}
	done     chan struct{}
}

// NewBatch constructs a batch sink that flushes when either maxBatch events
// have accumulated or flushInterval elapses, whichever comes first.
func NewBatch(cfg logging.JSONConfig, flusher BatchFlusher) *Batch {
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 32
	}
	b := &Batch{
		maxBatch: maxBatch,
		flusher:  flusher,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	b.encoder = json.NewEncoder(&b.buf)
	interval := cfg.FlushInterval
	if interval > 0 {
		go b.periodicFlush(interval)
	} else {
		close(b.done)
	}
	return b
}

// Write satisfies logging.Sink.
func (b *Batch) Write(event logging.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.encoder.Encode(event); err != nil {
		return err
	}
	b.count++
	if b.count >= b.maxBatch {
		return b.flushLocked()
	}
	return nil
}

func (b *Batch) flushLocked() error {
	if b.count == 0 {
		return nil
	}
	compressed, err := compressZstd(b.buf.Bytes())
	b.buf.Reset()
	count := b.count
	b.count = 0
	if err != nil {
		return err
	}
	if b.flusher == nil {
		return nil
	}
	return b.flusher.FlushBatch(compressed, count)
}

func compressZstd(raw []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()
	return encoder.EncodeAll(raw, nil), nil
}

func (b *Batch) periodicFlush(interval time.Duration) {
	defer close(b.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			b.flushLocked()
			b.mu.Unlock()
		}
	}
}

// Close flushes any buffered events and stops the periodic flusher.
func (b *Batch) Close(context.Context) error {
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

// DecompressZstd reverses compressZstd; exported for tests and tooling that
// need to inspect a flushed batch.
func DecompressZstd(compressed []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return decoder.DecodeAll(compressed, nil)
}
