// OASIS orchestrator server - drives multi-agent forum discussions and
// exposes the Agent-control surface of spec §6 over HTTP.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/oasis-forum/oasis/pkg/agent"
	"github.com/oasis-forum/oasis/pkg/botsession"
	"github.com/oasis-forum/oasis/pkg/config"
	"github.com/oasis-forum/oasis/pkg/events"
	"github.com/oasis-forum/oasis/pkg/external"
	"github.com/oasis-forum/oasis/pkg/llm"
	"github.com/oasis-forum/oasis/pkg/registry"
	"github.com/oasis-forum/oasis/pkg/schedule"
	"github.com/oasis-forum/oasis/pkg/summarizer"
	"github.com/oasis-forum/oasis/pkg/version"

	"github.com/spf13/afero"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ginMode := getEnv("GIN_MODE", "debug")
	gin.SetMode(ginMode)

	log.Printf("Starting %s", version.Full())
	log.Printf("HTTP Port: %s", httpPort)
	log.Printf("Config Directory: %s", *configDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}
	stats := cfg.Stats()

	llmClient := buildLLMClient(cfg)
	botSessionClient := botsession.NewLocal(llmClient)
	externalClient := external.New(cfg.Engine.AgentTimeout)

	resolver := agent.NewResolverWithExternals(
		agent.NewMemoryPresetStore(nil),
		agent.NewMemoryExternalConfigStore(nil),
	)

	deps := agent.Dependencies{
		LLM:          llmClient,
		BotSession:   botSessionClient,
		External:     externalClient,
		AgentTimeout: cfg.Engine.AgentTimeout,
	}

	fs := afero.NewOsFs()
	summ := summarizer.New(llmClient, fs, cfg.Engine.SummaryTemplatePath)

	reg := registry.New(resolver, deps, summ, fs, cfg.DataDir, registry.Defaults{
		MaxRounds:      cfg.Engine.MaxRounds,
		EarlyStop:      cfg.Engine.EarlyStop,
		DiscussionMode: cfg.Engine.DiscussionModeDefault,
		SummaryTimeout: cfg.Engine.SummaryTimeout,
	}, registry.NewCallback(
		getEnv("CALLBACK_AUTH_HEADER", ""),
		getEnv("CALLBACK_AUTH_VALUE", ""),
		getEnv("CALLBACK_SESSION_NAME", ""),
	))

	if err := reg.LoadAll(ctx); err != nil {
		log.Fatalf("Failed to load persisted topics: %v", err)
	}
	log.Println("✓ Topic registry initialized")

	router := gin.Default()
	registerRoutes(router, reg)

	log.Printf("HTTP server listening on :%s", httpPort)
	log.Printf("Health check available at: http://localhost:%s/health", httpPort)
	log.Printf("Configuration: max_rounds=%d early_stop=%v llm_backend=%s data_dir=%s",
		stats.MaxRounds, stats.EarlyStop, stats.LLMBackend, stats.DataDir)

	srv := &http.Server{Addr: ":" + httpPort, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down: reconciling live topics")
	reg.Shutdown(context.Background())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}

func buildLLMClient(cfg *config.Config) llm.Client {
	switch cfg.LLMBackend {
	case config.LLMBackendStub:
		return &llm.StubClient{Response: "stub response"}
	default:
		return llm.NewBedrockClient(cfg.Bedrock.Region, cfg.Bedrock.Profile, cfg.Bedrock.Model)
	}
}

// registerRoutes binds the Agent-control surface of spec §6 to reg.
// Request authentication, ownership verification beyond the bare owner
// string, and every other HTTP concern are out of scope (spec §1): this
// router is a thin, unauthenticated binding for local/demo use, the way
// cmd/tarsy/main.go binds a minimal router in front of its own service
// layer.
func registerRoutes(r *gin.Engine, reg *registry.Registry) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.Full()})
	})

	topics := r.Group("/topics")
	{
		topics.POST("", handleCreateTopic(reg))
		topics.GET("", handleListTopics(reg))
		topics.GET("/:id", handleGetTopic(reg))
		topics.DELETE("/:id", handleCancelTopic(reg))
		topics.POST("/:id/purge", handlePurgeTopic(reg))
		topics.DELETE("", handlePurgeAll(reg))
		topics.GET("/:id/stream", handleStreamTopic(reg))
		topics.GET("/:id/conclusion", handleWaitConclusion(reg))
	}
}

func ownerOf(c *gin.Context) string {
	if owner := c.GetHeader("X-Owner-Id"); owner != "" {
		return owner
	}
	return c.Query("owner")
}

type createTopicRequest struct {
	Question     string `json:"question" binding:"required"`
	MaxRounds    int    `json:"max_rounds"`
	ScheduleYAML string `json:"schedule" binding:"required"`
	Discussion   *bool  `json:"discussion"`
	OnComplete   string `json:"on_complete"`
}

func handleCreateTopic(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := ownerOf(c)
		if owner == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "owner is required"})
			return
		}

		var req createTopicRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		topicID, err := reg.CreateTopic(registry.CreateTopicRequest{
			Question:     req.Question,
			Owner:        owner,
			MaxRounds:    req.MaxRounds,
			ScheduleYAML: []byte(req.ScheduleYAML),
			Discussion:   req.Discussion,
			OnComplete:   req.OnComplete,
		})
		if err != nil {
			if _, ok := err.(*schedule.BadSchedule); ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"topic_id": topicID})
	}
}

func handleListTopics(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := ownerOf(c)
		if owner == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "owner is required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"topics": reg.ListTopics(owner)})
	}
}

func handleGetTopic(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		topic, err := reg.GetTopic(c.Param("id"), ownerOf(c))
		if err != nil {
			writeRegistryError(c, err)
			return
		}
		c.JSON(http.StatusOK, topic)
	}
}

func handleCancelTopic(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := reg.CancelTopic(c.Param("id"), ownerOf(c)); err != nil {
			writeRegistryError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handlePurgeTopic(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := reg.PurgeTopic(c.Param("id"), ownerOf(c)); err != nil {
			writeRegistryError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handlePurgeAll(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := ownerOf(c)
		if owner == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "owner is required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"purged": reg.PurgeAll(owner)})
	}
}

func handleWaitConclusion(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		timeout := 30 * time.Second
		conclusion, err := reg.WaitConclusion(c.Request.Context(), c.Param("id"), ownerOf(c), timeout)
		if err != nil {
			if err == registry.ErrTimeout {
				c.JSON(http.StatusRequestTimeout, gin.H{"error": "timed out waiting for conclusion"})
				return
			}
			writeRegistryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conclusion": conclusion})
	}
}

// handleStreamTopic bridges pkg/events.Stream onto an SSE response (spec
// §4.7), via gin's c.SSEvent helper.
func handleStreamTopic(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		store, err := reg.TopicStore(c.Param("id"), ownerOf(c))
		if err != nil {
			writeRegistryError(c, err)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		ch := events.Stream(c.Request.Context(), store)
		c.Stream(func(w io.Writer) bool {
			msg, ok := <-ch
			if !ok {
				return false
			}
			c.SSEvent(string(msg.Kind), msg)
			return msg.Kind != events.KindDone
		})
	}
}

func writeRegistryError(c *gin.Context, err error) {
	switch err {
	case registry.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case registry.ErrForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
