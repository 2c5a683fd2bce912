package server

import "testing"

func TestPresenceRegisterSupersedes(t *testing.T) {
	p := newPresence()

	first := &Session{ID: "conn-1", userID: 7}
	if old := p.register(first); old != nil {
		t.Errorf("First registration should supersede nothing, got %v", old)
	}

	second := &Session{ID: "conn-2", userID: 7}
	old := p.register(second)
	if old != first {
		t.Fatalf("Expected the first session to be superseded, got %v", old)
	}

	if _, ok := p.byHandle("conn-1"); ok {
		t.Error("Superseded handle should no longer resolve")
	}
	if sess, ok := p.byHandle("conn-2"); !ok || sess != second {
		t.Error("Current handle should resolve to the new session")
	}
}

func TestPresenceUnregisterOnlyCurrent(t *testing.T) {
	p := newPresence()

	first := &Session{ID: "conn-1", userID: 7}
	second := &Session{ID: "conn-2", userID: 7}
	p.register(first)
	p.register(second)

	// The stale session's teardown must not remove the live one.
	if p.unregister(first) {
		t.Error("Superseded session should not unregister")
	}
	if _, ok := p.byHandle("conn-2"); !ok {
		t.Fatal("Live session should survive a stale unregister")
	}

	if !p.unregister(second) {
		t.Error("Current session should unregister")
	}
	if p.unregister(second) {
		t.Error("Second unregister of the same session should be a no-op")
	}
	if ids := p.liveUserIDs(); len(ids) != 0 {
		t.Errorf("Expected no live users, got %v", ids)
	}
}

func TestPresenceLiveUserIDs(t *testing.T) {
	p := newPresence()
	p.register(&Session{ID: "conn-1", userID: 1})
	p.register(&Session{ID: "conn-2", userID: 2})

	ids := p.liveUserIDs()
	if len(ids) != 2 {
		t.Fatalf("Expected 2 live users, got %v", ids)
	}
	seen := map[int64]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[1] || !seen[2] {
		t.Errorf("Expected users 1 and 2, got %v", ids)
	}
}
