package server

import "sync"

// presence is the in-process directory of live sessions, keyed both by
// user id and by connection handle. It is a cache over the store rows: the
// hot path for message and signaling targeting never round-trips through
// the database.
type presence struct {
	mu     sync.RWMutex
	byUser map[int64]*Session
	byConn map[string]*Session
}

func newPresence() *presence {
	return &presence{
		byUser: make(map[int64]*Session),
		byConn: make(map[string]*Session),
	}
}

// register records sess as the live connection for its user. At most one
// handle is live per user: a previous session for the same user is
// superseded and returned so the caller can close it. Last writer wins.
func (p *presence) register(sess *Session) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	old := p.byUser[sess.userID]
	if old == sess {
		return nil
	}
	if old != nil {
		delete(p.byConn, old.ID)
	}
	p.byUser[sess.userID] = sess
	p.byConn[sess.ID] = sess
	return old
}

// unregister removes sess only if it is still the live connection for its
// user, and reports whether it was. A superseded session returns false.
func (p *presence) unregister(sess *Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.byUser[sess.userID] != sess {
		return false
	}
	delete(p.byUser, sess.userID)
	delete(p.byConn, sess.ID)
	return true
}

// byHandle resolves a connection handle to its live session.
func (p *presence) byHandle(connectionID string) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sess, ok := p.byConn[connectionID]
	return sess, ok
}

func (p *presence) all() []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sessions := make([]*Session, 0, len(p.byConn))
	for _, sess := range p.byConn {
		sessions = append(sessions, sess)
	}
	return sessions
}

func (p *presence) liveUserIDs() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]int64, 0, len(p.byUser))
	for id := range p.byUser {
		ids = append(ids, id)
	}
	return ids
}
