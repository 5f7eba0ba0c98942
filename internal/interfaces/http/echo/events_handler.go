package echo

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type EventsHandler struct {
	useCase app.SubscribeImportJob
}

func NewEventsHandler(useCase app.SubscribeImportJob) *EventsHandler {
	return &EventsHandler{useCase: useCase}
}

// Stream serves a job's events as server-sent events. The first message is
// always the job snapshot; pings are written as comments.
func (h *EventsHandler) Stream(c echo.Context) error {
	sub, err := h.useCase.Execute(c.Request().Context(), app.SubscribeImportJobInput{ID: c.Param("id")})
	if err != nil {
		return respondUseCaseError(c, err, "failed to subscribe to import job")
	}
	defer sub.Close()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := writeEvent(res, event); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeEvent(w *echo.Response, event domain.Event) error {
	if event.Type == domain.EventPing {
		_, err := fmt.Fprint(w, ": ping\n\n")
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
