package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jianghu-companion/server/cache"
	"github.com/jianghu-companion/server/config"
	"github.com/jianghu-companion/server/game/combat"
	mw "github.com/jianghu-companion/server/middleware"
	"github.com/jianghu-companion/server/model"
)

const announceChannel = "announce"

// Handler handles the SSE endpoint.
type Handler struct {
	db     *gorm.DB
	pubsub cache.PubSub
	sec    config.SecurityConfig
	c      cache.Cache
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(db *gorm.DB, pubsub cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{db: db, pubsub: pubsub, c: c, sec: sec, logger: logger}
}

// ServeSSE handles GET /sse?token=<jwt>.
// It streams server-sent events to authenticated clients: system
// announcements plus the caller's combat change feed. GMs follow their
// own combat channel; players the channel of the combat their character
// is currently in when the stream opens.
func (h *Handler) ServeSSE(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.c.Exists(ctx, "session:"+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	channels := []string{announceChannel}
	if combatCh := h.combatChannel(subCtx, claims); combatCh != "" {
		channels = append(channels, combatCh)
	}

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, channels...)
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	// Send initial connected event.
	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			event := "combat"
			if msg.Channel == announceChannel {
				event = "announce"
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// combatChannel picks the combat feed for the authenticated account.
func (h *Handler) combatChannel(ctx context.Context, claims *mw.Claims) string {
	if claims.Role == model.RoleGM {
		return combat.GMChannel(claims.AccountID)
	}
	var char model.Character
	err := h.db.WithContext(ctx).Select("active_combat_id").
		Where("account_id = ? AND is_npc = ?", claims.AccountID, false).
		First(&char).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Warn("sse character lookup failed",
				zap.Int64("account_id", claims.AccountID), zap.Error(err))
		}
		return ""
	}
	if char.ActiveCombatID == nil {
		return ""
	}
	return combat.Channel(*char.ActiveCombatID)
}

// Announce publishes an announcement message to all SSE subscribers.
func (h *Handler) Announce(ctx context.Context, message string) error {
	return h.pubsub.Publish(ctx, announceChannel, message)
}
