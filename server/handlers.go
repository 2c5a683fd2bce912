package server

import (
	"encoding/json"
	"time"

	"chatrelay/protocol"

	"go.uber.org/zap"
)

// handleGetUsers answers the roster pull query. The roster is computed
// fresh from the store on every request, not cached across sessions.
func (s *Server) handleGetUsers(sess *Session) {
	users, err := s.db.Roster()
	if err != nil {
		s.log.Error("roster query", zap.Error(err))
		s.sendError(sess, "internal error")
		return
	}

	records := make([]protocol.UserRecord, 0, len(users))
	for _, u := range users {
		records = append(records, protocol.UserRecord{
			ID:           u.ID,
			Username:     u.Username,
			IsOnline:     u.IsOnline,
			ConnectionID: u.ConnectionID,
		})
	}

	s.send(sess, protocol.EventUsers, records)
}

// handlePrivateMessage persists the message with a server-assigned
// timestamp, then delivers a transient copy to the target connection only.
// The row is kept even when the target is not live.
func (s *Server) handlePrivateMessage(sess *Session, data json.RawMessage) {
	if !sess.authenticated {
		s.sendError(sess, "not authenticated")
		return
	}

	var req protocol.PrivateMessage
	if err := json.Unmarshal(data, &req); err != nil || req.Content == "" || req.OtherUserID == 0 {
		s.sendError(sess, "invalid message")
		return
	}

	timestamp := time.Now().UTC()
	if _, err := s.db.SaveMessage(sess.userID, req.OtherUserID, req.Content, timestamp); err != nil {
		s.log.Error("save message",
			zap.Int64("sender", sess.userID),
			zap.Int64("recipient", req.OtherUserID),
			zap.Error(err))
		s.sendError(sess, "internal error")
		return
	}

	target, ok := s.presence.byHandle(req.To)
	if !ok {
		// Target went offline between roster and send; the message is
		// persisted and will show up in history replay.
		s.log.Debug("message target not live", zap.String("to", req.To))
		return
	}

	s.send(target, protocol.EventPrivateMessage, protocol.MessageDelivery{
		FullMessage: protocol.DeliveredMessage{
			UserID:    sess.userID,
			Message:   req.Content,
			Timestamp: timestamp.Format(time.RFC3339),
		},
		From: sess.ID,
	})
}

// handleHistory replays the conversation between the session's user and
// the requested peer, in insertion order, no pagination.
func (s *Server) handleHistory(sess *Session, data json.RawMessage) {
	if !sess.authenticated {
		s.sendError(sess, "not authenticated")
		return
	}

	var req protocol.MessagesRequest
	if err := json.Unmarshal(data, &req); err != nil || req.OtherUserID == 0 {
		s.sendError(sess, "invalid request")
		return
	}

	messages, err := s.db.GetMessages(sess.userID, req.OtherUserID)
	if err != nil {
		s.log.Error("history query",
			zap.Int64("user", sess.userID),
			zap.Int64("other", req.OtherUserID),
			zap.Error(err))
		s.sendError(sess, "internal error")
		return
	}

	records := make([]protocol.MessageRecord, 0, len(messages))
	for _, m := range messages {
		records = append(records, protocol.MessageRecord{
			ID:          m.ID,
			UserID:      m.SenderID,
			OtherUserID: m.RecipientID,
			Message:     m.Content,
			Timestamp:   m.Timestamp.Format(time.RFC3339),
		})
	}

	s.send(sess, protocol.EventMessages, records)
}

// handleSignal forwards one of the five call-signaling kinds verbatim to
// the target connection handle, annotated with the sender's own handle.
// Nothing is validated, nothing is persisted, and a dead target is a
// silent no-op.
func (s *Server) handleSignal(sess *Session, event string, data json.RawMessage) {
	if !sess.authenticated {
		s.sendError(sess, "not authenticated")
		return
	}

	var sig protocol.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		s.sendError(sess, "invalid signal")
		return
	}

	target, ok := s.presence.byHandle(sig.To)
	if !ok {
		s.log.Debug("signal target not live", zap.String("event", event), zap.String("to", sig.To))
		return
	}

	s.send(target, event, protocol.SignalDelivery{
		SDP:       sig.SDP,
		Candidate: sig.Candidate,
		Pick:      sig.Pick,
		From:      sess.ID,
	})
}
