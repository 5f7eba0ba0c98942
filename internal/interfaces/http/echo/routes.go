package echo

import e "github.com/labstack/echo/v4"

func RegisterRoutes(server *e.Echo, importHandler *ImportHandler, jobHandler *JobHandler, eventsHandler *EventsHandler) {
	v1 := server.Group("/api/v1/imports")
	v1.GET("/table-types", importHandler.TableTypes)
	v1.GET("/jobs", jobHandler.List)
	v1.GET("/jobs/:id", jobHandler.Get)
	v1.DELETE("/jobs/:id", jobHandler.Cancel)
	v1.GET("/jobs/:id/events", eventsHandler.Stream)
	v1.POST("/:tableType", importHandler.Submit)
}
