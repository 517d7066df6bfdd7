package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apirest "github.com/jianghu-companion/server/api/rest"
	"github.com/jianghu-companion/server/api/sse"
	apows "github.com/jianghu-companion/server/api/ws"
	"github.com/jianghu-companion/server/audit"
	"github.com/jianghu-companion/server/cache"
	"github.com/jianghu-companion/server/config"
	dbadapter "github.com/jianghu-companion/server/db"
	"github.com/jianghu-companion/server/game/bridge"
	"github.com/jianghu-companion/server/game/combat"
	"github.com/jianghu-companion/server/game/player"
	mw "github.com/jianghu-companion/server/middleware"
	"github.com/jianghu-companion/server/model"
	"github.com/jianghu-companion/server/scheduler"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		logger.Warn("security.jwt_secret is not set; using an empty secret is unsafe")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()

	// ---- Game Systems ----
	sm := player.NewSessionManager(logger)
	logs := combat.NewLogStore(c, cfg.Game.RollHistoryCap)
	combatSvc := combat.NewService(db, pubsub, logs, auditSvc, logger, nil)
	watcher := bridge.NewWatcher(combatSvc, db, pubsub, cfg.Game.CombatPollEvery, logger)

	// ---- Periodic Scheduler Tasks ----
	sched.AddTicker("session_cleanup", 5*time.Minute, func() {
		// Disconnects normally unregister themselves; sweep any session
		// that closed without making it back to the manager.
		if swept := sm.SweepClosed(); swept > 0 {
			logger.Info("swept closed sessions", zap.Int("count", swept))
		}
	})
	sched.AddTicker("combat_ref_sweep", 10*time.Minute, func() {
		// Clear combat back-references that point at rows deleted while the
		// process was down or by a failed transaction.
		res := db.Exec(`UPDATE characters SET active_combat_id = NULL
			WHERE active_combat_id IS NOT NULL
			AND active_combat_id NOT IN (SELECT id FROM combats)`)
		if res.Error != nil {
			logger.Warn("combat ref sweep failed", zap.Error(res.Error))
		} else if res.RowsAffected > 0 {
			logger.Info("cleared orphaned combat refs", zap.Int64("rows", res.RowsAffected))
		}
	})

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	ch := apows.NewCombatHandlers(db, combatSvc, sm, cfg.Game, logger, nil)
	ch.RegisterHandlers(wsRouter)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security)
	charH := apirest.NewCharacterHandler(db, cfg.Game)
	combatH := apirest.NewCombatHandler(db, combatSvc)
	uploadH := apirest.NewUploadHandler(cfg.Server.UploadDir)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)
		authG.GET("/profile", mw.Auth(cfg.Security, c), authH.Profile)

		charsG := api.Group("/characters")
		charsG.Use(mw.Auth(cfg.Security, c))
		charsG.GET("", charH.List)
		charsG.POST("", charH.Create)
		charsG.GET("/players", mw.RequireGM(), charH.ListPlayers)
		charsG.GET("/:id", charH.Get)
		charsG.PUT("/:id", charH.Update)
		charsG.DELETE("/:id", charH.Delete)
		charsG.GET("/:id/derived", charH.Derived)
		charsG.PATCH("/:id/stats", charH.UpdateStats)
		charsG.PATCH("/:id/scene", mw.RequireGM(), charH.SetScene)

		combatG := api.Group("/combat")
		combatG.Use(mw.Auth(cfg.Security, c))
		combatG.POST("", mw.RequireGM(), combatH.Create)
		combatG.GET("", mw.RequireGM(), combatH.Get)
		combatG.DELETE("", mw.RequireGM(), combatH.End)
		combatG.POST("/start", mw.RequireGM(), combatH.Start)
		combatG.POST("/roll/:index", mw.RequireGM(), combatH.ForceRoll)
		combatG.GET("/:id", combatH.GetByID)
		combatG.POST("/:id/next", combatH.Next)
		combatG.POST("/:id/initiative", combatH.SubmitInitiative)
		combatG.GET("/:id/log", combatH.Log)

		rollsG := api.Group("/rolls")
		rollsG.Use(mw.Auth(cfg.Security, c))
		rollsG.GET("/history", combatH.History)

		uploadG := api.Group("/upload")
		uploadG.Use(mw.Auth(cfg.Security, c))
		uploadG.POST("/portrait", uploadH.Portrait)
	}

	// ---- WebSocket ----
	wsH := apows.NewHandler(db, c, cfg.Security, sm, watcher, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(db, pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	// ---- Uploaded portraits ----
	if cfg.Server.UploadDir != "" {
		if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
			logger.Warn("upload dir create failed", zap.Error(err))
		}
		r.Static("/uploads", cfg.Server.UploadDir)
	}

	defer func() {
		sm.BroadcastToAll(&player.Packet{Type: "server_shutdown"})
		sm.CloseAllSessions()
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
