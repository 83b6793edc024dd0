package usecase

import (
	"context"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/logger"
)

const publishTimeout = 5 * time.Second

// eventHub decouples the training goroutine from slow consumers. Emit never
// blocks: events go through a buffered queue to the broker publisher and to
// every live subscriber, and are dropped when a queue is full.
type eventHub struct {
	pub domrepo.EventPublisher
	log *logger.Logger
	in  chan models.TrainingEvent

	mu     sync.Mutex
	subs   map[int]chan models.TrainingEvent
	nextID int
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

func newEventHub(pub domrepo.EventPublisher, log *logger.Logger, buffer int) *eventHub {
	h := &eventHub{
		pub:  pub,
		log:  log,
		in:   make(chan models.TrainingEvent, buffer),
		subs: make(map[int]chan models.TrainingEvent),
		done: make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *eventHub) Emit(e models.TrainingEvent) {
	select {
	case h.in <- e:
	default:
		h.log.Warn("training event dropped", logger.String("type", e.Type), logger.Int("epoch", e.Epoch))
	}
}

// Subscribe returns a channel of events and a function that cancels the
// subscription and closes the channel.
func (h *eventHub) Subscribe(buffer int) (<-chan models.TrainingEvent, func()) {
	ch := make(chan models.TrainingEvent, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *eventHub) run() {
	defer h.wg.Done()
	for {
		select {
		case e := <-h.in:
			h.dispatch(e)
		case <-h.done:
			for {
				select {
				case e := <-h.in:
					h.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

func (h *eventHub) dispatch(e models.TrainingEvent) {
	if h.pub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := h.pub.PublishTrainingEvent(ctx, e); err != nil {
			h.log.Error("publish training event failed",
				logger.String("type", e.Type),
				logger.String("run_id", e.RunID),
				logger.Error(err),
			)
		}
		cancel()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close flushes queued events and closes every subscriber channel.
func (h *eventHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	close(h.done)
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
