package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/rssnews/internal/control"
)

type controlRequest struct {
	Value string `binding:"required" json:"value"`
}

type controlResponse struct {
	Channel string        `json:"channel"`
	Key     string        `json:"key"`
	Value   string        `json:"value"`
	State   control.State `json:"state"`
}

func (s *Server) health(c *gin.Context) {
	if err := s.redis.Ping(c.Request.Context()).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": s.service,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": s.service,
		"version": s.version,
	})
}

func (s *Server) getControl(c *gin.Context) {
	sw, ok := s.switchFor(c)
	if !ok {
		return
	}

	s.respondControl(c, sw)
}

func (s *Server) putControl(c *gin.Context) {
	sw, ok := s.switchFor(c)
	if !ok {
		return
	}

	var req controlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := sw.Set(c.Request.Context(), req.Value); err != nil {
		if errors.Is(err, control.ErrInvalidValue) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write control value"})
		return
	}

	s.respondControl(c, sw)
}

func (s *Server) switchFor(c *gin.Context) (*control.Switch, bool) {
	key, err := control.KeyForChannel(c.Param("channel"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return control.NewSwitch(s.redis, key), true
}

func (s *Server) respondControl(c *gin.Context, sw *control.Switch) {
	value, err := sw.Value(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read control value"})
		return
	}

	c.JSON(http.StatusOK, controlResponse{
		Channel: c.Param("channel"),
		Key:     sw.Key(),
		Value:   value,
		State:   control.ParseState(value),
	})
}
