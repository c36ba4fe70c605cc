// Package bus broadcasts values from one producer to named subscribers.
package bus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// FanOut broadcasts values from a single input channel to N output channels.
// If an output channel is full, the value is dropped for that consumer to
// prevent a slow consumer from blocking the pipeline.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []output[T]
	bufSize int
	log     zerolog.Logger

	// OnDrop is called when a value is dropped for a subscriber.
	OnDrop func(subscriber string)
}

type output[T any] struct {
	name string
	ch   chan T
}

// New creates a FanOut with the given buffer size for output channels.
func New[T any](outputBufferSize int, log zerolog.Logger) *FanOut[T] {
	return &FanOut[T]{
		bufSize: outputBufferSize,
		log:     log,
	}
}

// Subscribe creates and returns a new named output channel. Subscribers
// must be added before Run starts.
func (f *FanOut[T]) Subscribe(name string) <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, output[T]{name: name, ch: ch})
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed, then closes every
// output channel.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer func() {
		f.mu.RLock()
		for _, o := range f.outputs {
			close(o.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for _, o := range f.outputs {
				select {
				case o.ch <- v:
				default:
					if f.OnDrop != nil {
						f.OnDrop(o.name)
					}
					f.log.Warn().Str("subscriber", o.name).Msg("output channel full, dropping")
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the saturation of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats returns the length and capacity of each subscriber channel.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, o := range f.outputs {
		stats[i] = ChannelStat{Name: o.name, Len: len(o.ch), Cap: cap(o.ch)}
	}
	return stats
}
