package db

import (
	"os"
	"testing"
	"time"
)

// setupTestDB creates a store backed by a temporary sqlite file.
func setupTestDB(t *testing.T) (*DB, func()) {
	tmpfile, err := os.CreateTemp("", "relay-test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	tmpfile.Close()
	os.Remove(tmpfile.Name()) // sqlite recreates it

	database, err := New(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	cleanup := func() {
		database.Close()
		os.Remove(tmpfile.Name())
	}

	return database, cleanup
}

func TestCreateAndAuthenticate(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := database.CreateUser("alice", "secret123"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	user, ok, err := database.AuthenticateUser("alice", "secret123")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !ok {
		t.Fatal("Correct credentials should authenticate")
	}
	if user.Username != "alice" || user.ID == 0 {
		t.Errorf("Unexpected user record: %+v", user)
	}
	if user.Password == "secret123" {
		t.Error("Password must not be stored in plaintext")
	}

	_, ok, err = database.AuthenticateUser("alice", "wrongpassword")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if ok {
		t.Error("Wrong password should not authenticate")
	}

	_, ok, err = database.AuthenticateUser("nobody", "secret123")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if ok {
		t.Error("Unknown user should not authenticate")
	}
}

func TestDuplicateUsername(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := database.CreateUser("alice", "secret123"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if err := database.CreateUser("alice", "other"); err == nil {
		t.Error("Duplicate username should fail the unique constraint")
	}
}

func TestConnectionLifecycle(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := database.CreateUser("alice", "secret123"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	user, err := database.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("Failed to load user: %v", err)
	}

	if err := database.SetConnected(user.ID, "conn-1", "tok-1"); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}

	user, err = database.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("Failed to load user: %v", err)
	}
	if !user.IsOnline || user.ConnectionID != "conn-1" || user.Token != "tok-1" {
		t.Errorf("Connected row not recorded: %+v", user)
	}

	roster, err := database.Roster()
	if err != nil {
		t.Fatalf("Roster failed: %v", err)
	}
	if len(roster) != 1 || !roster[0].IsOnline || roster[0].ConnectionID != "conn-1" {
		t.Errorf("Roster should reflect the live connection, got %+v", roster)
	}

	if err := database.SetOffline(user.ID); err != nil {
		t.Fatalf("SetOffline failed: %v", err)
	}
	user, err = database.GetUserByID(user.ID)
	if err != nil {
		t.Fatalf("Failed to load user: %v", err)
	}
	if user.IsOnline || user.ConnectionID != "" || user.Token != "" {
		t.Errorf("Offline row should be cleared: %+v", user)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := database.CreateUser("alice", "pw"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if err := database.CreateUser("bob", "pw"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	alice, _ := database.GetUserByUsername("alice")
	bob, _ := database.GetUserByUsername("bob")

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sent := []struct {
		from, to int64
		content  string
	}{
		{alice.ID, bob.ID, "hi"},
		{bob.ID, alice.ID, "hello"},
		{alice.ID, bob.ID, "how are you"},
	}
	for i, m := range sent {
		if _, err := database.SaveMessage(m.from, m.to, m.content, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	// Both directions of the pair, in send order, from either viewpoint.
	for _, pair := range [][2]int64{{alice.ID, bob.ID}, {bob.ID, alice.ID}} {
		messages, err := database.GetMessages(pair[0], pair[1])
		if err != nil {
			t.Fatalf("GetMessages failed: %v", err)
		}
		if len(messages) != len(sent) {
			t.Fatalf("Expected %d messages, got %d", len(sent), len(messages))
		}
		for i, m := range messages {
			if m.Content != sent[i].content || m.SenderID != sent[i].from || m.RecipientID != sent[i].to {
				t.Errorf("Message %d mismatch: %+v", i, m)
			}
		}
	}
}

func TestSyncOnline(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	if err := database.CreateUser("alice", "pw"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if err := database.CreateUser("bob", "pw"); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	alice, _ := database.GetUserByUsername("alice")
	bob, _ := database.GetUserByUsername("bob")

	if err := database.SetConnected(alice.ID, "conn-a", "tok"); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}
	if err := database.SetConnected(bob.ID, "conn-b", "tok"); err != nil {
		t.Fatalf("SetConnected failed: %v", err)
	}

	// Only alice is actually live: bob's row must be corrected.
	corrected, err := database.SyncOnline([]int64{alice.ID})
	if err != nil {
		t.Fatalf("SyncOnline failed: %v", err)
	}
	if corrected != 1 {
		t.Errorf("Expected 1 corrected row, got %d", corrected)
	}

	bob, _ = database.GetUserByID(bob.ID)
	if bob.IsOnline {
		t.Error("Stale row should have been marked offline")
	}
	alice, _ = database.GetUserByID(alice.ID)
	if !alice.IsOnline {
		t.Error("Live user should stay online")
	}

	// Nobody live clears everything.
	if _, err := database.SyncOnline(nil); err != nil {
		t.Fatalf("SyncOnline failed: %v", err)
	}
	alice, _ = database.GetUserByID(alice.ID)
	if alice.IsOnline {
		t.Error("SyncOnline(nil) should mark everyone offline")
	}
}
