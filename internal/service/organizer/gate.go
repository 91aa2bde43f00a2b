package organizer

import (
	"container/list"
	"sync"
)

const defaultGateSessions = 10000

// RequestGate tracks the newest organize request per session so a response
// that lost the race to a newer request can be flagged as stale. Only the
// most recently active sessions are remembered.
type RequestGate struct {
	mu       sync.Mutex
	max      int
	sessions map[string]*list.Element
	order    *list.List
}

type gateEntry struct {
	session string
	latest  uint64
}

func NewRequestGate(maxSessions int) *RequestGate {
	if maxSessions <= 0 {
		maxSessions = defaultGateSessions
	}
	return &RequestGate{
		max:      maxSessions,
		sessions: make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Begin registers a request and returns its sequence number. A zero seq is
// replaced by one past the newest seen for the session.
func (g *RequestGate) Begin(session string, seq uint64) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	el, ok := g.sessions[session]
	if !ok {
		if seq == 0 {
			seq = 1
		}
		g.sessions[session] = g.order.PushFront(&gateEntry{session: session, latest: seq})
		g.evict()
		return seq
	}

	e := el.Value.(*gateEntry)
	if seq == 0 {
		seq = e.latest + 1
	}
	if seq > e.latest {
		e.latest = seq
	}
	g.order.MoveToFront(el)
	return seq
}

// Current reports whether no newer request than seq has begun for session.
// Forgotten sessions count as current.
func (g *RequestGate) Current(session string, seq uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	el, ok := g.sessions[session]
	if !ok {
		return true
	}
	return el.Value.(*gateEntry).latest <= seq
}

func (g *RequestGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

func (g *RequestGate) evict() {
	for g.order.Len() > g.max {
		oldest := g.order.Back()
		g.order.Remove(oldest)
		delete(g.sessions, oldest.Value.(*gateEntry).session)
	}
}
