package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/threshcorder/internal/catalog"
	"github.com/tphakala/threshcorder/internal/logger"
)

const maxEpisodeLimit = 1000

// ErrorResponse is the body of failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.session.Status())
}

// handleEpisodes lists episodes newest first. Query parameters: limit,
// offset and, with a catalogue, session ("current" for this session).
func (s *Server) handleEpisodes(c echo.Context) error {
	limit, err := intParam(c, "limit", 50)
	if err != nil || limit < 1 || limit > maxEpisodeLimit {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("limit must be between 1 and %d", maxEpisodeLimit),
		})
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil || offset < 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "offset must be a non-negative integer"})
	}

	if s.catalog == nil {
		return c.JSON(http.StatusOK, s.sessionEpisodes(limit, offset))
	}

	sessionID := c.QueryParam("session")
	if sessionID == "current" {
		sessionID = s.session.ID()
	}

	key := fmt.Sprintf("%s|%d|%d", sessionID, limit, offset)
	if cached, ok := s.cache.Get(key); ok {
		return c.JSON(http.StatusOK, cached)
	}

	rows, err := s.catalog.List(c.Request().Context(), catalog.ListOptions{
		SessionID: sessionID,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		s.log.Warn("catalogue query failed", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "catalogue unavailable"})
	}

	list := EpisodeList{Source: "catalog", Episodes: make([]EpisodeDTO, 0, len(rows))}
	for i := range rows {
		list.Episodes = append(list.Episodes, episodeFromCatalog(&rows[i]))
	}

	s.cache.DeleteExpired()
	s.cache.SetDefault(key, list)
	return c.JSON(http.StatusOK, list)
}

func (s *Server) sessionEpisodes(limit, offset int) EpisodeList {
	recent := s.session.Episodes()
	id := s.session.ID()

	list := EpisodeList{Source: "session", Episodes: []EpisodeDTO{}}
	for i := offset; i < len(recent) && len(list.Episodes) < limit; i++ {
		list.Episodes = append(list.Episodes, episodeFromResult(id, &recent[i]))
	}
	return list
}

func intParam(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
