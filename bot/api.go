package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
)

const (
	xRequestIDHeader = "X-Request-ID"

	apiPrefix     = "/api"
	apiPathHealth = apiPrefix + "/health"
	apiPathStats  = apiPrefix + "/stats"
)

// StatsFunc reports bot-specific counters for the stats endpoint.
type StatsFunc func() map[string]any

type healthCheckResponse struct {
	Bot                     string `json:"bot"`
	Version                 string `json:"version"`
	DiscordGatewayConnected bool   `json:"discord_gateway_connected"`
	Uptime                  string `json:"uptime"`
}

type statsResponse struct {
	Bot   string         `json:"bot"`
	Stats map[string]any `json:"stats"`
}

// API serves read-only status endpoints for a running bot.
type API struct {
	config     *APIConfig
	httpServer *http.Server
	listener   net.Listener
	engine     *gin.Engine
	logger     *slog.Logger
	bot        *Bot
}

func newAPI(b *Bot, config *APIConfig) *API {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	api := &API{
		config: config,
		engine: r,
		bot:    b,
		logger: NewLogger("api", config.LogLevel),
	}

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           r,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	r.Use(
		gin.Recovery(),
		requestIDMiddleware(),
		ginLoggingMiddleware(api.logger),
		cors.New(config.CORS.GINConfig()),
	)

	r.GET(apiPathHealth, api.healthCheck)
	r.GET(apiPathStats, api.stats)
	return api
}

// Serve listens on the configured address until ctx is canceled, then
// shuts the server down gracefully.
func (a *API) Serve(ctx context.Context) error {
	if a.listener == nil {
		listenCfg := &net.ListenConfig{}
		ln, err := listenCfg.Listen(ctx, "tcp", a.config.Listen)
		if err != nil {
			return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
		}
		a.listener = ln
	}
	a.logger.InfoContext(ctx, "api listening", "addr", a.listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Serve(a.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.WithoutCancel(ctx),
			defaultAPIShutdownGraceTime,
		)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error shutting down api", tint.Err(err))
			return err
		}
		return nil
	}
}

func (a *API) healthCheck(c *gin.Context) {
	c.JSON(
		http.StatusOK, healthCheckResponse{
			Bot:                     a.bot.name,
			Version:                 Version,
			DiscordGatewayConnected: a.bot.connected.Load(),
			Uptime:                  a.bot.Uptime().Truncate(time.Second).String(),
		},
	)
}

func (a *API) stats(c *gin.Context) {
	rv := statsResponse{Bot: a.bot.name, Stats: map[string]any{}}
	if f := a.bot.statsFunc(); f != nil {
		rv.Stats = f()
	}
	rv.Stats["interactions_handled"] = a.bot.metricInteractions.Load()
	rv.Stats["messages_handled"] = a.bot.metricMessages.Load()
	rv.Stats["connects"] = a.bot.metricConnects.Load()
	rv.Stats["disconnects"] = a.bot.metricDisconnects.Load()
	c.JSON(http.StatusOK, rv)
}

// requestIDMiddleware assigns a unique request ID to each incoming request
// and echoes it in the X-Request-ID response header.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(xRequestIDHeader, id)
		c.Header(xRequestIDHeader, id)
		c.Next()
	}
}

func ginLoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID, _ := c.Get(xRequestIDHeader)
		requestLogger := logger.With(
			slog.Group(
				"request",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"remote_ip", c.RemoteIP(),
				"user_agent", c.Request.UserAgent(),
			),
			slog.Any(xRequestIDHeader, requestID),
		)

		c.Next()

		requestLogger.Info(
			fmt.Sprintf("%s %s finished", c.Request.Method, c.Request.URL.Path),
			"duration", time.Since(start),
			slog.Group(
				"response",
				"status_code", c.Writer.Status(),
				"body_size", c.Writer.Size(),
			),
		)
	}
}
