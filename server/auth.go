package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"chatrelay/db"
	"chatrelay/models"
	"chatrelay/protocol"

	"go.uber.org/zap"
)

// errAuthentication is the single failure every rejected handshake maps
// to. Unknown user, wrong password, missing or invalid token: the caller
// sees the same outcome.
var errAuthentication = errors.New("authentication error")

func decodeHandshake(raw []byte) (*protocol.Handshake, error) {
	var hs protocol.Handshake
	if err := json.Unmarshal(raw, &hs); err != nil {
		return nil, errAuthentication
	}
	return &hs, nil
}

// admit runs the connection-authentication gate as a single atomic
// decision: validate fully first, then apply every state mutation
// together. Nothing is written for a rejected handshake.
//
// Credentials take precedence. A username/password match admits with a
// freshly issued token no matter what token was supplied. Otherwise the
// token-reconnection path requires the isAuthenticated hint plus a
// verifying token, and resolves the user by the token's username claim.
func (s *Server) admit(sess *Session, hs *protocol.Handshake) (*models.User, error) {
	user, tok, err := s.resolve(hs)
	if err != nil {
		return nil, err
	}

	if err := s.db.SetConnected(user.ID, sess.ID, tok); err != nil {
		return nil, fmt.Errorf("record connection: %w", err)
	}

	sess.userID = user.ID
	sess.username = user.Username
	sess.token = tok
	sess.authenticated = true

	// A new successful authentication for the same user supersedes the
	// prior connection.
	if old := s.presence.register(sess); old != nil {
		s.log.Info("superseding connection",
			zap.Int64("user", user.ID),
			zap.String("old", old.ID),
			zap.String("new", sess.ID))
		old.conn.Close()
	}

	return user, nil
}

// resolve decides whether the handshake is admissible and, if so, which
// user and session token it binds. It mutates nothing.
func (s *Server) resolve(hs *protocol.Handshake) (*models.User, string, error) {
	if hs.Username != "" {
		user, ok, err := s.db.AuthenticateUser(hs.Username, hs.Password)
		if err != nil {
			return nil, "", fmt.Errorf("credential check: %w", err)
		}
		if ok {
			tok, err := s.tokens.Issue(user.Username)
			if err != nil {
				return nil, "", fmt.Errorf("issue token: %w", err)
			}
			return user, tok, nil
		}
	}

	if hs.IsAuthenticated {
		username, ok := s.tokens.Claims(hs.Token)
		if !ok {
			return nil, "", errAuthentication
		}
		user, err := s.db.GetUserByUsername(username)
		if err == db.ErrNoRows {
			return nil, "", errAuthentication
		}
		if err != nil {
			return nil, "", fmt.Errorf("user lookup: %w", err)
		}
		return user, hs.Token, nil
	}

	return nil, "", errAuthentication
}
