package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type subscribeRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleSubscribe registers a new account. The password is stored as a
// bcrypt hash, never as supplied.
func (s *Server) handleSubscribe(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid request"})
	}
	if req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "username and password required"})
	}

	exists, err := s.db.UserExists(req.Username)
	if err != nil {
		s.log.Error("subscribe lookup", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	if exists {
		return c.JSON(http.StatusConflict, echo.Map{"message": "user already exists"})
	}

	if err := s.db.CreateUser(req.Username, req.Password); err != nil {
		s.log.Error("subscribe insert", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}

	s.log.Info("user registered", zap.String("username", req.Username))
	return c.JSON(http.StatusCreated, echo.Map{
		"message":      "user registered successfully",
		"isSubscribed": true,
	})
}
