package http

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/renify/internal/app/queue"
	"github.com/osa030/renify/internal/app/session"
	"github.com/osa030/renify/internal/domain/track"
)

type commandRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
}

type enqueueRequest struct {
	ActorID        string `json:"actor_id" binding:"required"`
	VoiceChannelID string `json:"voice_channel_id"`
	TextChannelID  string `json:"text_channel_id"`
	Query          string `json:"query"`
}

type trackPayload struct {
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	URI         string `json:"uri"`
	DurationSec int64  `json:"duration_sec"`
	Source      string `json:"source,omitempty"`
}

func toTrackPayload(t track.Track) trackPayload {
	return trackPayload{
		Title:       t.Title,
		Author:      t.Author,
		URI:         t.URI,
		DurationSec: int64(t.Duration / time.Second),
		Source:      t.Source,
	}
}

type enqueueResponse struct {
	Started      bool         `json:"started"`
	Track        trackPayload `json:"track"`
	PlaylistName string       `json:"playlist_name,omitempty"`
	TrackCount   int          `json:"track_count"`
	QueueLength  int          `json:"queue_length"`
	Tier         string       `json:"tier"`
	Capacity     int          `json:"capacity"`
	Unlimited    bool         `json:"unlimited"`
}

type errorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Limit    int    `json:"limit,omitempty"`
	Overflow int    `json:"overflow,omitempty"`
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleEnqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "bad_request", Message: "missing or invalid request body"})
		return
	}

	res, err := h.manager.Enqueue(c.Request.Context(), session.EnqueueRequest{
		ActorID:        req.ActorID,
		RoomID:         c.Param("room"),
		VoiceChannelID: req.VoiceChannelID,
		TextChannelID:  req.TextChannelID,
		Query:          req.Query,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if res.Started {
		status = http.StatusCreated
	}
	c.JSON(status, enqueueResponse{
		Started:      res.Started,
		Track:        toTrackPayload(res.Track),
		PlaylistName: res.PlaylistName,
		TrackCount:   res.TrackCount,
		QueueLength:  res.QueueLength,
		Tier:         res.TierLabel,
		Capacity:     res.Capacity.Limit,
		Unlimited:    res.Capacity.Unlimited,
	})
}

func (h *Handler) handleSkip(c *gin.Context) {
	actor, ok := bindCommand(c)
	if !ok {
		return
	}
	if err := h.manager.Skip(actor, c.Param("room")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"skipped": true})
}

func (h *Handler) handlePause(c *gin.Context) {
	var req struct {
		ActorID string `json:"actor_id" binding:"required"`
		Pause   *bool  `json:"pause" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "bad_request", Message: "missing or invalid request body"})
		return
	}
	if err := h.manager.PauseToggle(req.ActorID, c.Param("room"), *req.Pause); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": *req.Pause})
}

func (h *Handler) handleStop(c *gin.Context) {
	actor, ok := bindCommand(c)
	if !ok {
		return
	}
	if err := h.manager.Stop(actor, c.Param("room")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

func (h *Handler) handleListQueue(c *gin.Context) {
	tracks := h.manager.ListQueue(c.Param("room"))
	payload := make([]trackPayload, len(tracks))
	for i, t := range tracks {
		payload[i] = toTrackPayload(t)
	}
	c.JSON(http.StatusOK, gin.H{"tracks": payload})
}

func (h *Handler) handleStatus(c *gin.Context) {
	state, ok := h.manager.Status(c.Param("room"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Code: "no_session", Message: "no active session for this room"})
		return
	}
	c.JSON(http.StatusOK, state)
}

func bindCommand(c *gin.Context) (string, bool) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Code: "bad_request", Message: "missing or invalid request body"})
		return "", false
	}
	return req.ActorID, true
}

// writeError maps command errors onto stable codes and HTTP statuses.
func writeError(c *gin.Context, err error) {
	var ve *session.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, errorResponse{Code: ve.Code, Message: ve.Error()})
		return
	}
	var ce *queue.CapacityExceeded
	if errors.As(err, &ce) {
		c.JSON(http.StatusConflict, errorResponse{
			Code: "queue_full", Message: ce.Error(), Limit: ce.Limit, Overflow: ce.Overflow,
		})
		return
	}

	switch {
	case errors.Is(err, session.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, errorResponse{Code: "rate_limited", Message: err.Error()})
	case errors.Is(err, session.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, errorResponse{Code: "permission_denied", Message: err.Error()})
	case errors.Is(err, session.ErrNoResults):
		c.JSON(http.StatusNotFound, errorResponse{Code: "no_results", Message: err.Error()})
	case errors.Is(err, session.ErrNothingPlaying):
		c.JSON(http.StatusNotFound, errorResponse{Code: "nothing_playing", Message: err.Error()})
	case errors.Is(err, session.ErrNothingToStop):
		c.JSON(http.StatusNotFound, errorResponse{Code: "nothing_to_stop", Message: err.Error()})
	case errors.Is(err, session.ErrSessionConflict):
		c.JSON(http.StatusConflict, errorResponse{Code: "session_conflict", Message: err.Error()})
	case errors.Is(err, session.ErrAlreadyPaused):
		c.JSON(http.StatusConflict, errorResponse{Code: "already_paused", Message: err.Error()})
	case errors.Is(err, session.ErrAlreadyPlaying):
		c.JSON(http.StatusConflict, errorResponse{Code: "already_playing", Message: err.Error()})
	case errors.Is(err, session.ErrSearchFailed):
		c.JSON(http.StatusBadGateway, errorResponse{Code: "search_failed", Message: "search provider unavailable"})
	default:
		zlog.Error().Msgf("unhandled command error: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: "internal error"})
	}
}
