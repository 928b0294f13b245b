package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/termwatch/termwatch/channel"
	"github.com/termwatch/termwatch/stats"
	"github.com/termwatch/termwatch/store"
)

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/_health", s.handleHealthCheck)
	e.GET("/status", s.handleStatus)
	e.GET("/queue", s.handleQueueStatus)
	e.GET("/stats", s.handleStats)
	e.GET("/stats/top", s.handleStatsTop)
	e.DELETE("/stats", s.handleClearStats)

	e.POST("/monitor/start", s.handleMonitorStart)
	e.POST("/monitor/stop", s.handleMonitorStop)
	e.POST("/mode", s.handleSetMode)

	e.GET("/accounts", s.handleListAccounts)
	e.POST("/accounts", s.handleAddAccount)
	e.DELETE("/accounts/:id", s.handleRemoveAccount)

	e.POST("/channels", s.handleAddChannel)
	e.DELETE("/channels/:ref", s.handleRemoveChannel)

	e.POST("/terms", s.handleAddTerms)
	e.DELETE("/terms", s.handleRemoveTerms)
}

func (s *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.monitor.Status())
}

func (s *Server) handleQueueStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.queue.Status())
}

func (s *Server) handleStats(c echo.Context) error {
	snap, err := s.store.Read(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"totals":  stats.Summarize(snap.Stats),
		"entries": stats.Ranked(snap.Stats),
	})
}

func (s *Server) handleStatsTop(c echo.Context) error {
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	snap, err := s.store.Read(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch c.QueryParam("by") {
	case "term":
		return c.JSON(http.StatusOK, stats.TopTerms(snap.Stats, limit))
	case "channel":
		return c.JSON(http.StatusOK, stats.TopChannels(snap.Stats, limit))
	case "", "pair":
		return c.JSON(http.StatusOK, stats.Top(snap.Stats, limit))
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid by parameter, want term, channel, or pair")
	}
}

func (s *Server) handleClearStats(c echo.Context) error {
	if err := s.stats.Clear(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMonitorStart(c echo.Context) error {
	if err := s.monitor.Start(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, s.monitor.Status())
}

func (s *Server) handleMonitorStop(c echo.Context) error {
	s.monitor.Stop(c.Request().Context())
	return c.JSON(http.StatusOK, s.monitor.Status())
}

func (s *Server) handleSetMode(c echo.Context) error {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	mode, err := store.ParseMode(body.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.store.SetMode(c.Request().Context(), mode); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.refreshMonitor(c)
	return c.JSON(http.StatusOK, map[string]string{"mode": string(mode)})
}

func (s *Server) handleListAccounts(c echo.Context) error {
	snap, err := s.store.Read(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snap.Accounts)
}

func (s *Server) handleAddAccount(c echo.Context) error {
	var body struct {
		ID        string `json:"id"`
		Phone     string `json:"phone"`
		UserID    string `json:"userId"`
		Username  string `json:"username"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if body.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "account id is required")
	}
	acct := store.Account{
		ID:        body.ID,
		Phone:     body.Phone,
		UserID:    body.UserID,
		Username:  body.Username,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		AddedAt:   time.Now(),
	}
	if err := s.store.AddAccount(c.Request().Context(), acct); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, acct)
}

func (s *Server) handleRemoveAccount(c echo.Context) error {
	id := c.Param("id")
	if err := s.store.RemoveAccount(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// drop any live session too
	s.pool.Remove(c.Request().Context(), id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAddChannel(c echo.Context) error {
	var body struct {
		Ref string `json:"ref"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ref, err := channel.ParseRef(body.Ref)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.store.AddChannel(c.Request().Context(), ref); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.refreshMonitor(c)
	return c.JSON(http.StatusCreated, map[string]string{"ref": ref.String()})
}

func (s *Server) handleRemoveChannel(c echo.Context) error {
	ref, err := channel.ParseRef(c.Param("ref"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.store.RemoveChannel(c.Request().Context(), ref); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.refreshMonitor(c)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleAddTerms(c echo.Context) error {
	var body struct {
		Terms []string `json:"terms"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(body.Terms) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one term is required")
	}
	if err := s.store.AddTerms(c.Request().Context(), body.Terms); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.refreshMonitor(c)
	return c.JSON(http.StatusCreated, map[string]any{"added": body.Terms})
}

func (s *Server) handleRemoveTerms(c echo.Context) error {
	var body struct {
		Terms []string `json:"terms"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.store.RemoveTerms(c.Request().Context(), body.Terms); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.refreshMonitor(c)
	return c.NoContent(http.StatusNoContent)
}

// refreshMonitor pushes config mutations into a running monitor so matching
// picks them up before the next poll cycle.
func (s *Server) refreshMonitor(c echo.Context) {
	if !s.monitor.Active() {
		return
	}
	if err := s.monitor.Refresh(c.Request().Context()); err != nil {
		s.logger.Warn("monitor config refresh failed", "err", err)
	}
}
