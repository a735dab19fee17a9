package http

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
	"bintunet/internal/core/services"
	"bintunet/internal/infrastructure/middleware"
	"bintunet/pkg/errors"
)

type StreamHandler struct{}

func NewStreamHandler() *StreamHandler {
	return &StreamHandler{}
}

func (h *StreamHandler) SetupRoutes(api *gin.RouterGroup, auth gin.HandlerFunc) {
	streams := api.Group("/streams", auth)
	{
		streams.GET("", h.ListStreams)
		streams.POST("", h.CreateStream)
		streams.GET("/:id", h.GetStream)
		streams.PATCH("/:id", h.UpdateStream)
		streams.DELETE("/:id", h.DeleteStream)
		streams.POST("/:id/start", h.StartStream)
		streams.POST("/:id/stop", h.StopStream)
		streams.GET("/:id/metrics", h.GetStreamMetrics)
	}
}

// CreateStreamRequest carries exactly the user-configurable stream fields.
type CreateStreamRequest struct {
	Title            string             `json:"title"`
	DestinationKey   string             `json:"destination_key"`
	Quality          domain.Quality     `json:"quality"`
	Orientation      domain.Orientation `json:"orientation"`
	Looping          bool               `json:"looping"`
	MaxDurationHours *int               `json:"max_duration_hours"`
	FileName         string             `json:"file_name"`
	OverlayText      string             `json:"overlay_text"`
}

func (r CreateStreamRequest) draft() domain.StreamDraft {
	return domain.StreamDraft{
		Title:            r.Title,
		DestinationKey:   r.DestinationKey,
		Quality:          r.Quality,
		Orientation:      r.Orientation,
		Looping:          r.Looping,
		MaxDurationHours: r.MaxDurationHours,
		FileName:         r.FileName,
		OverlayText:      r.OverlayText,
	}
}

// UpdateStreamRequest is a partial update. Absent fields are left untouched;
// max_duration_hours set to null removes the cap.
type UpdateStreamRequest struct {
	Title            *string             `json:"title"`
	DestinationKey   *string             `json:"destination_key"`
	Quality          *domain.Quality     `json:"quality"`
	Orientation      *domain.Orientation `json:"orientation"`
	Looping          *bool               `json:"looping"`
	MaxDurationHours optionalInt         `json:"max_duration_hours"`
	FileName         *string             `json:"file_name"`
	OverlayText      *string             `json:"overlay_text"`
}

func (r UpdateStreamRequest) patch() domain.StreamPatch {
	p := domain.StreamPatch{
		Title:          r.Title,
		DestinationKey: r.DestinationKey,
		Quality:        r.Quality,
		Orientation:    r.Orientation,
		Looping:        r.Looping,
		FileName:       r.FileName,
		OverlayText:    r.OverlayText,
	}
	if r.MaxDurationHours.Set {
		if r.MaxDurationHours.Value == nil {
			p.ClearMaxDuration = true
		} else {
			p.MaxDurationHours = r.MaxDurationHours.Value
		}
	}
	return p
}

// optionalInt tells an explicit null apart from an absent key.
type optionalInt struct {
	Set   bool
	Value *int
}

func (o *optionalInt) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// decodeStrict rejects fields outside the request type.
func decodeStrict(c *gin.Context, dst interface{}) *errors.AppError {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.NewInvalidInputError("invalid request body: " + err.Error())
	}
	return nil
}

func sessionOrAbort(c *gin.Context) (*services.Session, bool) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		_ = c.Error(errors.NewUnauthorizedError("authentication required"))
		return nil, false
	}
	return session, true
}

func streamID(c *gin.Context) domain.StreamID {
	return domain.StreamID(c.Param("id"))
}

func fail(c *gin.Context, session *services.Session, err error) {
	appErr := mapDomainError(err, session.User.MaxStreams)
	if appErr.Code == errors.ErrCodeNotFound {
		appErr = appErr.WithContext("stream_id", c.Param("id"))
	}
	_ = c.Error(appErr)
}

func (h *StreamHandler) ListStreams(c *gin.Context) {
	session, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	streams := session.Engine.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"streams":     streams,
		"max_streams": session.User.MaxStreams,
	})
}

func (h *StreamHandler) CreateStream(c *gin.Context) {
	session, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	var req CreateStreamRequest
	if appErr := decodeStrict(c, &req); appErr != nil {
		_ = c.Error(appErr)
		return
	}

	stream, err := session.Engine.Create(c.Request.Context(), req.draft())
	if err != nil {
		fail(c, session, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"stream": stream,
	})
}

func (h *StreamHandler) GetStream(c *gin.Context) {
	session, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	stream, found := session.Engine.Get(c.Request.Context(), streamID(c))
	if !found {
		fail(c, session, domain.ErrStreamNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stream": stream,
	})
}

// UpdateStream applies the patch and returns the stream as it now stands.
// Patching an unknown id is accepted and changes nothing.
func (h *StreamHandler) UpdateStream(c *gin.Context) {
	session, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	var req UpdateStreamRequest
	if appErr := decodeStrict(c, &req); appErr != nil {
		_ = c.Error(appErr)
		return
	}

	ctx := c.Request.Context()
	if err := session.Engine.Update(ctx, streamID(c), req.patch()); err != nil {
		fail(c, session, err)
		return
	}
	stream, found := session.Engine.Get(ctx, streamID(c))
	if !found {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stream": stream,
	})
}

func (h *StreamHandler) DeleteStream(c *gin.Context) {
	session, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	if err := session.Engine.Delete(c.Request.Context(), streamID(c)); err != nil {
		fail(c, session, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StreamHandler) StartStream(c *gin.Context) {
	h.transition(c, func(s *services.Session) error {
		return s.Engine.Start(c.Request.Context(), streamID(c))
	})
}

func (h *StreamHandler) StopStream(c *gin.Context) {
	h.transition(c, func(s *services.Session) error {
		return s.Engine.Stop(c.Request.Context(), streamID(c))
	})
}

func (h *StreamHandler) transition(c *gin.Context, apply func(*services.Session) error) {
	session, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	if err := apply(session); err != nil {
		fail(c, session, err)
		return
	}
	stream, _ := session.Engine.Get(c.Request.Context(), streamID(c))
	c.JSON(http.StatusAccepted, gin.H{
		"stream": stream,
	})
}

func (h *StreamHandler) GetStreamMetrics(c *gin.Context) {
	session, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	metrics, err := session.Engine.GetMetrics(c.Request.Context(), streamID(c))
	if err != nil {
		fail(c, session, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metrics": metrics,
	})
}

var _ ports.StreamHTTPHandler = (*StreamHandler)(nil)
