package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/guregu/null"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jgulick48/herzborg-bridge/internal/herzborg"
	"github.com/jgulick48/herzborg-bridge/internal/thing"
)

// stateProvider is implemented by handlers that cache channel states.
type stateProvider interface {
	States() map[string]thing.State
}

type ThingResponse struct {
	UID    string                   `json:"uid"`
	Type   string                   `json:"type"`
	Label  string                   `json:"label"`
	Status thing.StatusInfo         `json:"status"`
	States map[string]StateResponse `json:"states,omitempty"`
}

type StateResponse struct {
	State string   `json:"state"`
	Value null.Int `json:"value"`
}

type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
}

type thingsHandler struct {
	registry Registry
	limiter  *rate.Limiter
	logger   *zap.Logger
}

func newThingResponse(handler thing.Handler) ThingResponse {
	response := ThingResponse{
		UID:    string(handler.UID()),
		Type:   handler.UID().ThingType(),
		Label:  handler.Label(),
		Status: handler.StatusInfo(),
	}
	if provider, ok := handler.(stateProvider); ok {
		states := provider.States()
		response.States = make(map[string]StateResponse, len(states))
		for channel, state := range states {
			s := StateResponse{State: state.String()}
			if percent, ok := state.(thing.PercentType); ok {
				s.Value = null.IntFrom(int64(percent))
			}
			response.States[channel] = s
		}
	}
	return response
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), RequestID: c.GetString(requestIDKey)})
}

func (h *thingsHandler) List(c *gin.Context) {
	handlers := h.registry.Handlers()
	things := make([]ThingResponse, 0, len(handlers))
	for _, handler := range handlers {
		things = append(things, newThingResponse(handler))
	}
	c.JSON(http.StatusOK, things)
}

func (h *thingsHandler) Get(c *gin.Context) {
	handler, ok := h.registry.Handler(thing.UID(c.Param("uid")))
	if !ok {
		abort(c, http.StatusNotFound, herzborg.ErrUnknownThing)
		return
	}
	c.JSON(http.StatusOK, newThingResponse(handler))
}

// Command accepts a command for a channel. It returns as soon as the command
// is queued; the bus reply is not awaited.
func (h *thingsHandler) Command(c *gin.Context) {
	var request CommandRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	command, err := thing.ParseCommand(request.Command)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if !h.limiter.Allow() {
		abort(c, http.StatusTooManyRequests, errors.New("too many commands"))
		return
	}
	uid := thing.UID(c.Param("uid"))
	channel := c.Param("channel")
	if err := h.registry.SendCommand(uid, channel, command); err != nil {
		if errors.Is(err, herzborg.ErrUnknownThing) {
			abort(c, http.StatusNotFound, err)
			return
		}
		abort(c, http.StatusInternalServerError, err)
		return
	}
	h.logger.Info("command accepted", zap.String("thing", string(uid)), zap.String("channel", channel), zap.Stringer("command", command))
	c.Status(http.StatusAccepted)
}
