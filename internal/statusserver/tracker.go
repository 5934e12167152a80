package statusserver

import (
	"sync"

	"github.com/imposteroid/apkscan/internal/analysis"
	"github.com/imposteroid/apkscan/internal/client"
	"github.com/imposteroid/apkscan/pkg/version"
)

// Tracker keeps the latest orchestrator state for the status API and forwards
// every change to the websocket hub.
type Tracker struct {
	server     string
	connection func() client.ConnectionStatus
	hub        *Hub

	mu    sync.RWMutex
	state analysis.State
}

// NewTracker returns a tracker for jobs sent to server. connection may be nil.
func NewTracker(server string, connection func() client.ConnectionStatus) *Tracker {
	t := &Tracker{
		server:     server,
		connection: connection,
	}
	t.hub = NewHub(func() any { return t.Status() })
	return t
}

// Observe is an analysis.Observer.
func (t *Tracker) Observe(s analysis.State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()

	t.hub.Broadcast("state", t.Status())
}

func (t *Tracker) State() analysis.State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Tracker) Status() StatusReply {
	reply := StatusReply{
		Server:  t.server,
		State:   t.State(),
		Version: version.Get().String(),
	}
	if t.connection != nil {
		c := t.connection()
		reply.Connection = &c
	}
	return reply
}

func (t *Tracker) Hub() *Hub {
	return t.hub
}
