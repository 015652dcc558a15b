package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/zenmed/carechat/internal/auth"
	"github.com/zenmed/carechat/internal/chat"
)

// claimsKey is the echo context key the verified claims live under.
const claimsKey = "auth.claims"

// requireAuth verifies the bearer token and attaches the claims for
// handlers.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		if header == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		claims, err := s.jwt.VerifyToken(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
		}
		c.Set(claimsKey, claims)
		return next(c)
	}
}

// caller builds the command identity from the request's claims.
func caller(c echo.Context) chat.Caller {
	claims, _ := c.Get(claimsKey).(*auth.Claims)
	if claims == nil {
		return chat.Caller{}
	}
	return chat.Caller{UserID: claims.UserID, Role: claims.Role}
}

// loginKey extracts the claimed email from a login body without consuming
// the request stream the handler needs.
func loginKey(c echo.Context) string {
	req := c.Request()
	if req.Body == nil {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(req.Body, 1<<16))
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	var body struct {
		Email string `json:"email"`
	}
	_ = json.Unmarshal(raw, &body)
	return body.Email
}
