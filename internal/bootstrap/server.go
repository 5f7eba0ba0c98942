package bootstrap

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	httpecho "github.com/mohammadpnp/bulk-import/internal/interfaces/http/echo"
)

type HTTPDeps struct {
	Import  *httpecho.ImportHandler
	Jobs    *httpecho.JobHandler
	Events  *httpecho.EventsHandler
	Metrics http.Handler
	// MaxBodyBytes caps request bodies; uploads carry multipart overhead on
	// top of the file size limit.
	MaxBodyBytes int64
	Log          *zap.Logger
}

func NewHTTPServer(deps HTTPDeps) *echo.Echo {
	server := echo.New()
	server.HideBanner = true
	server.HidePort = true

	server.Use(middleware.Recover())
	server.Use(middleware.RequestID())
	server.Use(middleware.BodyLimit(strconv.FormatInt(deps.MaxBodyBytes, 10)))
	if deps.Log != nil {
		server.Use(requestLogger(deps.Log))
	}

	httpecho.RegisterRoutes(server, deps.Import, deps.Jobs, deps.Events)

	server.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		server.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	return server
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	log = log.Named("http")
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				log.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	})
}
