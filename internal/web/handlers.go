package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/zenmed/carechat/internal/auth"
	"github.com/zenmed/carechat/internal/data"
	"github.com/zenmed/carechat/internal/flood"
	"github.com/zenmed/carechat/internal/normalize"
)

// httpError maps the core error taxonomy to transport status codes.
func httpError(err error) error {
	var rl *flood.RateLimitedError
	switch {
	case errors.As(err, &rl):
		return echo.NewHTTPError(http.StatusTooManyRequests, map[string]any{
			"error":       "rate limited",
			"retry_after": rl.Seconds(),
		})
	case errors.Is(err, data.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	case errors.Is(err, data.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, data.ErrChannelClosed):
		return echo.NewHTTPError(http.StatusConflict, "channel closed")
	case errors.Is(err, data.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, data.ErrDuplicate):
		return echo.NewHTTPError(http.StatusConflict, "already exists")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleLogin(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}

	user, err := s.dir.GetUserByEmail(c.Request().Context(), normalize.Email(req.Email))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	token, expiresAt, err := s.jwt.GenerateToken(user)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"token":      token,
		"user_id":    user.ID,
		"role":       user.Role,
		"expires_at": expiresAt.UnixMilli(),
	})
}

func (s *Server) handleMe(c echo.Context) error {
	cl := caller(c)
	user, err := s.dir.GetUserByID(c.Request().Context(), cl.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) handleUnread(c echo.Context) error {
	total, err := s.svc.TotalUnread(c.Request().Context(), caller(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": total})
}

func (s *Server) handleListChannels(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	channels, err := s.svc.List(c.Request().Context(), caller(c), limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"channels": channels})
}

func (s *Server) handleCreateChannel(c echo.Context) error {
	var req struct {
		ParticipantIDs []string `json:"participant_ids"`
		AppointmentID  string   `json:"appointment_id"`
		HospitalID     string   `json:"hospital_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}

	ch, err := s.svc.Create(c.Request().Context(), caller(c), req.ParticipantIDs, data.ChannelMeta{
		AppointmentID: req.AppointmentID,
		HospitalID:    req.HospitalID,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, ch)
}

func (s *Server) handleGetChannel(c echo.Context) error {
	ch, err := s.svc.Get(c.Request().Context(), caller(c), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ch)
}

func (s *Server) handleGetMessages(c echo.Context) error {
	limit := queryInt(c, "limit", 50)
	cursor := queryInt(c, "cursor", 0)
	direction := data.ListDirection(c.QueryParam("direction"))
	if direction == "" {
		direction = data.DirectionOlder
	}

	page, err := s.svc.Messages(c.Request().Context(), caller(c), c.Param("id"), limit, cursor, direction)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) handleSendMessage(c echo.Context) error {
	var req struct {
		Body string `json:"body"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}

	msg, err := s.svc.Send(c.Request().Context(), caller(c), c.Param("id"), req.Body)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	if err := s.svc.MarkRead(c.Request().Context(), caller(c), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTyping(c echo.Context) error {
	if err := s.svc.Typing(c.Request().Context(), caller(c), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleCloseChannel(c echo.Context) error {
	if err := s.svc.Close(c.Request().Context(), caller(c), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleEvents bridges the channel event feed to the client as SSE. The
// subscription ends when the client disconnects.
func (s *Server) handleEvents(c echo.Context) error {
	ctx := c.Request().Context()
	channelID := c.Param("id")

	// Membership check up front; the bus itself has no notion of roles.
	if _, err := s.svc.Get(ctx, caller(c), channelID); err != nil {
		return httpError(err)
	}

	sub, err := s.bus.Subscribe(ctx, channelID)
	if err != nil {
		return httpError(err)
	}
	defer sub.Close()

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", payload); err != nil {
				return nil
			}
			c.Response().Flush()
		}
	}
}

func queryInt(c echo.Context, name string, def int64) int64 {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
