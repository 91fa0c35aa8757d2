package websocket

import (
	"sync"

	"github.com/aukilabs/broadphase/replication"
)

const (
	sendChanSize = 512
)

// Hub fans out the frames of a replication stream to subscribers.
//
// The hub keeps the frames published since the last keyframe so that a new
// subscriber starts from a keyframe and receives every following frame.
type Hub struct {
	mutex       sync.Mutex
	subscribers map[*Subscriber]struct{}
	backlog     []replication.Frame
	closed      bool
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
	}
}

// Subscriber receives frames from a hub.
type Subscriber struct {
	frames  chan replication.Frame
	dropped bool
}

// Frames returns the channel the subscriber frames are sent to. It is closed
// when the subscriber is unsubscribed, when it does not keep up with the
// stream or when the hub is closed.
func (s *Subscriber) Frames() <-chan replication.Frame {
	return s.frames
}

// Subscribe registers a new subscriber. Its channel is already filled with
// the frames since the last keyframe.
func (h *Hub) Subscribe() *Subscriber {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	s := &Subscriber{
		frames: make(chan replication.Frame, sendChanSize+len(h.backlog)),
	}
	for _, f := range h.backlog {
		s.frames <- f
	}

	if h.closed {
		close(s.frames)
		return s
	}

	h.subscribers[s] = struct{}{}
	instrumentSubscribers(len(h.subscribers))
	return s
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.subscribers[s]; !ok {
		return
	}
	h.remove(s)
}

// Publish sends f to all the subscribers. A subscriber with a full channel is
// dropped.
func (h *Hub) Publish(f replication.Frame) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}

	switch {
	case f.Keyframe:
		h.backlog = append(h.backlog[:0], f)
	case len(h.backlog) != 0:
		h.backlog = append(h.backlog, f)
	}

	for s := range h.subscribers {
		select {
		case s.frames <- f:
		default:
			s.dropped = true
			h.remove(s)
			instrumentDroppedSubscriber()
		}
	}
}

func (h *Hub) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	return len(h.subscribers)
}

// Close closes every subscriber. Frames published afterward are ignored.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for s := range h.subscribers {
		h.remove(s)
	}
	h.closed = true
}

func (h *Hub) remove(s *Subscriber) {
	delete(h.subscribers, s)
	close(s.frames)
	instrumentSubscribers(len(h.subscribers))
}
