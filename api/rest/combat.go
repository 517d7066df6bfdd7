package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jianghu-companion/server/game/combat"
	mw "github.com/jianghu-companion/server/middleware"
	"github.com/jianghu-companion/server/model"
)

// CombatHandler handles combat REST endpoints. The same operations are
// reachable over WS; REST exists for page loads and non-realtime clients.
type CombatHandler struct {
	db  *gorm.DB
	svc *combat.Service
}

// NewCombatHandler creates a new CombatHandler.
func NewCombatHandler(db *gorm.DB, svc *combat.Service) *CombatHandler {
	return &CombatHandler{db: db, svc: svc}
}

type createCombatRequest struct {
	CharacterIDs []int64 `json:"character_ids" binding:"required,min=1"`
}

// Create handles POST /api/combat (GM only). An existing combat of the
// same GM is ended and replaced.
func (h *CombatHandler) Create(c *gin.Context) {
	gmID := mw.GetAccountID(c)
	var req createCombatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cb, err := h.svc.Create(c.Request.Context(), gmID, req.CharacterIDs)
	if err != nil {
		if errors.Is(err, combat.ErrEmptyRoster) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no valid participants"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, cb)
}

// Get handles GET /api/combat (GM only). Returns the GM's combat with its
// log so a page reload restores the full table state.
func (h *CombatHandler) Get(c *gin.Context) {
	gmID := mw.GetAccountID(c)
	cb, err := h.svc.Get(c.Request.Context(), gmID)
	if err != nil {
		if errors.Is(err, combat.ErrNoCombat) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active combat"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	log, err := h.svc.Logs().GMLog(c.Request.Context(), cb.ID)
	if err != nil {
		log = nil
	}
	c.JSON(http.StatusOK, gin.H{"combat": cb, "log": log})
}

// GetByID handles GET /api/combat/:id. Participants and GMs may read it.
func (h *CombatHandler) GetByID(c *gin.Context) {
	cb, ok := h.fetchVisible(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, cb)
}

// Start handles POST /api/combat/start (GM only).
func (h *CombatHandler) Start(c *gin.Context) {
	gmID := mw.GetAccountID(c)
	cb, err := h.svc.StartRound(c.Request.Context(), gmID)
	if err != nil {
		if errors.Is(err, combat.ErrNoCombat) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active combat"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, cb)
}

// Next handles POST /api/combat/:id/next. The GM may always advance;
// a player only on their own character's turn.
func (h *CombatHandler) Next(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	isGM := mw.GetRole(c) == model.RoleGM
	combatID := c.Param("id")

	var actorCharID int64
	if !isGM {
		char, ok := h.ownCharacter(c, accountID)
		if !ok {
			return
		}
		actorCharID = char.ID
	}
	cb, err := h.svc.AdvanceTurn(c.Request.Context(), combatID, actorCharID, isGM)
	if err != nil {
		switch {
		case errors.Is(err, combat.ErrNotYourTurn):
			c.JSON(http.StatusForbidden, gin.H{"error": "not your turn"})
		case errors.Is(err, combat.ErrCombatNotActive):
			c.JSON(http.StatusConflict, gin.H{"error": "combat not started"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	if cb == nil {
		// Combat vanished between the client's view and this request.
		c.JSON(http.StatusOK, gin.H{"combat": nil})
		return
	}
	c.JSON(http.StatusOK, cb)
}

// ForceRoll handles POST /api/combat/roll/:index (GM only). Rolls
// initiative for one still-empty slot.
func (h *CombatHandler) ForceRoll(c *gin.Context) {
	gmID := mw.GetAccountID(c)
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	cb, err := h.svc.ForceRoll(c.Request.Context(), gmID, index)
	if err != nil {
		switch {
		case errors.Is(err, combat.ErrNoCombat):
			c.JSON(http.StatusNotFound, gin.H{"error": "no active combat"})
		case errors.Is(err, combat.ErrNotParticipant):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, cb)
}

// End handles DELETE /api/combat (GM only). Idempotent.
func (h *CombatHandler) End(c *gin.Context) {
	gmID := mw.GetAccountID(c)
	if err := h.svc.End(c.Request.Context(), gmID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ended"})
}

type initiativeRequest struct {
	// d20 + agility never rolls below 1.
	Value int `json:"value" binding:"min=1"`
}

// SubmitInitiative handles POST /api/combat/:id/initiative. Records the
// calling player's rolled initiative; a filled slot is left as is.
func (h *CombatHandler) SubmitInitiative(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	combatID := c.Param("id")

	var req initiativeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	char, ok := h.ownCharacter(c, accountID)
	if !ok {
		return
	}
	cb, err := h.svc.SubmitInitiative(c.Request.Context(), combatID, char.ID, req.Value)
	if err != nil {
		switch {
		case errors.Is(err, combat.ErrNoCombat):
			c.JSON(http.StatusNotFound, gin.H{"error": "combat not found"})
		case errors.Is(err, combat.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, cb)
}

// Log handles GET /api/combat/:id/log. Participants and GMs may read it.
func (h *CombatHandler) Log(c *gin.Context) {
	cb, ok := h.fetchVisible(c)
	if !ok {
		return
	}
	log, err := h.svc.Logs().GMLog(c.Request.Context(), cb.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": log})
}

// History handles GET /api/rolls/history. Returns the calling player's
// personal roll history, most recent first.
func (h *CombatHandler) History(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	char, ok := h.ownCharacter(c, accountID)
	if !ok {
		return
	}
	entries, err := h.svc.Logs().History(c.Request.Context(), char.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// ownCharacter loads the account's (non-NPC) character.
func (h *CombatHandler) ownCharacter(c *gin.Context, accountID int64) (*model.Character, bool) {
	var char model.Character
	err := h.db.Where("account_id = ? AND is_npc = ?", accountID, false).First(&char).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no character"})
		return nil, false
	}
	return &char, true
}

// fetchVisible loads the :id combat and requires the caller to be its GM
// or one of its participants.
func (h *CombatHandler) fetchVisible(c *gin.Context) (*model.Combat, bool) {
	accountID := mw.GetAccountID(c)
	cb, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, combat.ErrNoCombat) {
			c.JSON(http.StatusNotFound, gin.H{"error": "combat not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return nil, false
	}
	if cb.GMID == accountID {
		return cb, true
	}
	for _, p := range cb.DecodeTurnOrder() {
		if p.UserID == accountID {
			return cb, true
		}
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	return nil, false
}
