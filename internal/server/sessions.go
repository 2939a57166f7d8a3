package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/olusolaa/mathagent/foundation/conversation"
)

// session is one conversation. turn serialises agent runs on it.
type session struct {
	id      string
	created time.Time

	turn  sync.Mutex
	mu    sync.RWMutex
	state *conversation.State
}

func (s *session) snapshot() *conversation.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *session) replace(state *conversation.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// store keeps sessions in memory.
type store struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newStore() *store {
	return &store{sessions: make(map[string]*session)}
}

func (st *store) create() *session {
	s := &session{
		id:      uuid.NewString(),
		created: time.Now().UTC(),
		state:   &conversation.State{},
	}
	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
	return s
}

func (st *store) get(id string) (*session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *store) remove(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	return true
}

func (st *store) count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
