package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/jianghu-companion/server/config"
	"github.com/jianghu-companion/server/game/rules"
	mw "github.com/jianghu-companion/server/middleware"
	"github.com/jianghu-companion/server/model"
)

// CharacterHandler handles character sheet REST endpoints.
type CharacterHandler struct {
	db   *gorm.DB
	game config.GameConfig
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(db *gorm.DB, game config.GameConfig) *CharacterHandler {
	return &CharacterHandler{db: db, game: game}
}

// List handles GET /api/characters. Players see their own sheet; a GM sees
// their NPC roster, optionally filtered to in-scene NPCs.
func (h *CharacterHandler) List(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	q := h.db.Where("account_id = ?", accountID)
	if c.Query("in_scene") == "1" {
		q = q.Where("in_scene = ?", true)
	}
	var chars []model.Character
	if err := q.Find(&chars).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": chars})
}

// ListPlayers handles GET /api/characters/players (GM only). Returns every
// non-NPC sheet so the GM can build combat rosters and inspect players.
func (h *CharacterHandler) ListPlayers(c *gin.Context) {
	var chars []model.Character
	if err := h.db.Where("is_npc = ?", false).Find(&chars).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": chars})
}

type characterRequest struct {
	Name         string `json:"name" binding:"required,min=1,max=64"`
	ImageURL     string `json:"image_url" binding:"omitempty,max=255"`
	ClanID       string `json:"clan_id"`
	InnateBodyID string `json:"innate_body_id"`

	Vigor         int `json:"vigor" binding:"min=0,max=10"`
	Agility       int `json:"agility" binding:"min=0,max=10"`
	Discipline    int `json:"discipline" binding:"min=0,max=10"`
	Comprehension int `json:"comprehension" binding:"min=0,max=10"`
	Presence      int `json:"presence" binding:"min=0,max=10"`

	ProficientAttribute string `json:"proficient_attribute" binding:"omitempty,oneof=vigor agility discipline comprehension presence"`

	BodyRefinementLevel int `json:"body_refinement_level" binding:"min=0"`
	CultivationStage    int `json:"cultivation_stage" binding:"min=0"`
	MasteryLevel        int `json:"mastery_level" binding:"min=0"`

	Inventory  *model.CharacterInventory `json:"inventory"`
	Techniques []model.Technique         `json:"techniques"`
	Stats      *model.LiveStats          `json:"stats"`

	IsNPC bool `json:"is_npc"`
}

// Create handles POST /api/characters. Players create their own sheet;
// a GM creating with is_npc gets an NPC, capped per GM.
func (h *CharacterHandler) Create(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	role := mw.GetRole(c)

	var req characterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IsNPC && role != model.RoleGM {
		c.JSON(http.StatusForbidden, gin.H{"error": "only a gm can create npcs"})
		return
	}

	var existing []model.Character
	if err := h.db.Select("id", "is_npc").Where("account_id = ?", accountID).Find(&existing).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if req.IsNPC {
		npcs := 0
		for _, e := range existing {
			if e.IsNPC {
				npcs++
			}
		}
		if h.game.MaxNPCsPerGM > 0 && npcs >= h.game.MaxNPCsPerGM {
			c.JSON(http.StatusBadRequest, gin.H{"error": "npc limit reached"})
			return
		}
	} else {
		for _, e := range existing {
			if !e.IsNPC {
				c.JSON(http.StatusBadRequest, gin.H{"error": "account already has a character"})
				return
			}
		}
	}

	char := &model.Character{
		AccountID:           accountID,
		Name:                req.Name,
		ImageURL:            req.ImageURL,
		ClanID:              req.ClanID,
		InnateBodyID:        req.InnateBodyID,
		Vigor:               req.Vigor,
		Agility:             req.Agility,
		Discipline:          req.Discipline,
		Comprehension:       req.Comprehension,
		Presence:            req.Presence,
		ProficientAttribute: req.ProficientAttribute,
		BodyRefinementLevel: min(req.BodyRefinementLevel, rules.MaxRefinementLevel()),
		CultivationStage:    min(req.CultivationStage, rules.MaxCultivationStage()),
		MasteryLevel:        min(req.MasteryLevel, rules.MaxMasteryLevel()),
		IsNPC:               req.IsNPC,
	}
	inv := model.CharacterInventory{Armor: model.Armor{Type: "none"}}
	if req.Inventory != nil {
		inv = *req.Inventory
	}
	char.EncodeInventory(inv)
	char.EncodeTechniques(req.Techniques)

	// Seed current pools at the derived maximums unless the client sent stats.
	st := model.LiveStats{}
	if req.Stats != nil {
		st = *req.Stats
	} else {
		d := derive(char)
		st.CurrentHP = d.MaxHP
		st.CurrentChi = d.MaxChi
	}
	char.EncodeStats(st)

	if err := h.db.Create(char).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, char)
}

// Get handles GET /api/characters/:id. Owners and GMs may read any sheet;
// other players only their own.
func (h *CharacterHandler) Get(c *gin.Context) {
	char, ok := h.fetchReadable(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, char)
}

// Derived handles GET /api/characters/:id/derived. Returns the computed
// maximums and armor class with manual overrides already applied.
func (h *CharacterHandler) Derived(c *gin.Context) {
	char, ok := h.fetchReadable(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, derive(char))
}

// Update handles PUT /api/characters/:id. Progression tiers never move
// backwards; a lower submitted tier keeps the stored one.
func (h *CharacterHandler) Update(c *gin.Context) {
	char, ok := h.fetchOwned(c)
	if !ok {
		return
	}
	var req characterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	char.Name = req.Name
	char.ImageURL = req.ImageURL
	char.ClanID = req.ClanID
	char.InnateBodyID = req.InnateBodyID
	char.Vigor = req.Vigor
	char.Agility = req.Agility
	char.Discipline = req.Discipline
	char.Comprehension = req.Comprehension
	char.Presence = req.Presence
	char.ProficientAttribute = req.ProficientAttribute
	char.BodyRefinementLevel = clampTierUpdate(char.BodyRefinementLevel, req.BodyRefinementLevel, rules.MaxRefinementLevel())
	char.CultivationStage = clampTierUpdate(char.CultivationStage, req.CultivationStage, rules.MaxCultivationStage())
	char.MasteryLevel = clampTierUpdate(char.MasteryLevel, req.MasteryLevel, rules.MaxMasteryLevel())
	if req.Inventory != nil {
		char.EncodeInventory(*req.Inventory)
	}
	if req.Techniques != nil {
		char.EncodeTechniques(req.Techniques)
	}
	if req.Stats != nil {
		char.EncodeStats(*req.Stats)
	}

	if err := h.db.Save(char).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, char)
}

type statsRequest struct {
	CurrentHP        *int `json:"current_hp"`
	CurrentChi       *int `json:"current_chi"`
	ManualMaxHP      *int `json:"manual_max_hp"`
	ManualMaxChi     *int `json:"manual_max_chi"`
	ManualArmorClass *int `json:"manual_armor_class"`
	ClearOverrides   bool `json:"clear_overrides"`
}

// UpdateStats handles PATCH /api/characters/:id/stats. Quick-edit of the
// current pools and the manual maximum overrides without touching the
// rest of the sheet.
func (h *CharacterHandler) UpdateStats(c *gin.Context) {
	char, ok := h.fetchOwned(c)
	if !ok {
		return
	}
	var req statsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st := char.DecodeStats()
	if req.CurrentHP != nil {
		st.CurrentHP = *req.CurrentHP
	}
	if req.CurrentChi != nil {
		st.CurrentChi = *req.CurrentChi
	}
	if req.ClearOverrides {
		st.ManualMaxHP, st.ManualMaxChi, st.ManualArmorClass = nil, nil, nil
	}
	if req.ManualMaxHP != nil {
		st.ManualMaxHP = req.ManualMaxHP
	}
	if req.ManualMaxChi != nil {
		st.ManualMaxChi = req.ManualMaxChi
	}
	if req.ManualArmorClass != nil {
		st.ManualArmorClass = req.ManualArmorClass
	}
	char.EncodeStats(st)

	if err := h.db.Model(char).Update("stats", char.Stats).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": st, "derived": derive(char)})
}

type sceneRequest struct {
	InScene bool `json:"in_scene"`
}

// SetScene handles PATCH /api/characters/:id/scene (GM only). Toggles an
// NPC's visibility in the roster builder.
func (h *CharacterHandler) SetScene(c *gin.Context) {
	char, ok := h.fetchOwned(c)
	if !ok {
		return
	}
	if !char.IsNPC {
		c.JSON(http.StatusBadRequest, gin.H{"error": "not an npc"})
		return
	}
	var req sceneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.db.Model(char).Update("in_scene", req.InScene).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	char.InScene = req.InScene
	c.JSON(http.StatusOK, char)
}

// Delete handles DELETE /api/characters/:id. A character inside a combat
// cannot be deleted.
func (h *CharacterHandler) Delete(c *gin.Context) {
	char, ok := h.fetchOwned(c)
	if !ok {
		return
	}
	if char.ActiveCombatID != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "character is in combat"})
		return
	}
	if err := h.db.Delete(char).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// fetchOwned loads the :id character and requires ownership.
func (h *CharacterHandler) fetchOwned(c *gin.Context) (*model.Character, bool) {
	accountID := mw.GetAccountID(c)
	charID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}
	var char model.Character
	if err := h.db.Where("id = ? AND account_id = ?", charID, accountID).First(&char).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		return nil, false
	}
	return &char, true
}

// fetchReadable loads the :id character; GMs may read any sheet.
func (h *CharacterHandler) fetchReadable(c *gin.Context) (*model.Character, bool) {
	accountID := mw.GetAccountID(c)
	role := mw.GetRole(c)
	charID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}
	var char model.Character
	if err := h.db.First(&char, charID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "character not found"})
		return nil, false
	}
	if char.AccountID != accountID && role != model.RoleGM {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return &char, true
}

func derive(char *model.Character) rules.Derived {
	return rules.DeriveCharacter(char)
}

// clampTierUpdate keeps progression monotonic and inside the table bounds.
func clampTierUpdate(stored, submitted, max int) int {
	if submitted < stored {
		return stored
	}
	if submitted > max {
		return max
	}
	return submitted
}
