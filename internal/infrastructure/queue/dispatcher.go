package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
)

// ErrStopped is returned for jobs submitted after the dispatcher shut down.
var ErrStopped = errors.New("dispatcher stopped")

type job struct {
	key  string
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Dispatcher routes keyed jobs to a fixed set of workers using consistent
// hashing on the key, so jobs for one pallet never overlap and run in
// submission order.
type Dispatcher struct {
	workers []chan job
	log     zerolog.Logger
	depth   *prometheus.GaugeVec

	stopped chan struct{}
	once    sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDepthGauge reports each worker's backlog on g, labelled by worker index.
func WithDepthGauge(g *prometheus.GaugeVec) Option {
	return func(d *Dispatcher) { d.depth = g }
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger, opts ...Option) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan job, numWorkers),
		log:     log,
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	for i := range d.workers {
		d.workers[i] = make(chan job, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
	go func() {
		<-ctx.Done()
		d.once.Do(func() { close(d.stopped) })
	}()
}

// Do runs fn on the worker that owns key and waits for its result. It
// returns early with ctx.Err() if the caller gives up first; a job already
// picked up still runs to completion.
func (d *Dispatcher) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	idx := d.shardIndex(key)
	j := job{key: key, ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case <-d.stopped:
		return ErrStopped
	default:
	}

	select {
	case d.workers[idx] <- j:
		d.setDepth(strconv.Itoa(idx), len(d.workers[idx]))
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// shardIndex maps a key deterministically to a worker index.
func (d *Dispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) setDepth(worker string, n int) {
	if d.depth != nil {
		d.depth.WithLabelValues(worker).Set(float64(n))
	}
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan job) {
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-ch:
			if !ok {
				return
			}
			d.setDepth(label, len(ch))
			if err := j.ctx.Err(); err != nil {
				j.done <- err
				continue
			}
			err := j.fn(context.WithoutCancel(j.ctx))
			if err != nil {
				d.log.Debug().Err(err).
					Str("key", j.key).
					Int("worker_id", id).
					Msg("keyed job failed")
			}
			j.done <- err
		}
	}
}
