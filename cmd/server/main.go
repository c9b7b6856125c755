package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agent-relay/backend/api/handlers"
	"github.com/agent-relay/backend/internal/config"
	"github.com/agent-relay/backend/internal/logging"
	"github.com/agent-relay/backend/internal/session"
	"github.com/agent-relay/backend/internal/ws"
	"github.com/agent-relay/backend/internal/workunit"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	// Work unit selection: an external command when configured, the
	// built-in echo unit otherwise.
	var factory workunit.Factory
	if cfg.WorkUnit.Command != "" {
		factory = workunit.CommandFactory(cfg.WorkUnit.Command, cfg.WorkUnit.Args...)
		logging.Info().Str("command", cfg.WorkUnit.Command).Msg("using command work unit")
	} else {
		factory = func(workunit.Config) (workunit.Adapter, error) {
			return workunit.NewEchoAdapter(), nil
		}
		logging.Info().Msg("using built-in echo work unit")
	}

	manager := session.NewManager(factory, cfg.Server.MaxSessions)
	defer manager.Shutdown()

	gateway := ws.NewGateway(manager)

	sessionHandler := handlers.NewSessionHandler(manager)
	wsHandler := handlers.NewWebSocketHandler(gateway)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	if cfg.Server.Metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	{
		sessionHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info().Msg("shutting down server")
		manager.Shutdown()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logging.Info().Str("addr", addr).Msg("starting server")
	if err := r.Run(addr); err != nil {
		logging.Fatal().Err(err).Msg("server failed")
	}
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
