package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jianghu-companion/server/config"
	"github.com/jianghu-companion/server/game/combat"
	"github.com/jianghu-companion/server/game/damage"
	"github.com/jianghu-companion/server/game/dice"
	"github.com/jianghu-companion/server/game/player"
	"github.com/jianghu-companion/server/game/rules"
	"github.com/jianghu-companion/server/model"
)

// CombatHandlers bundles the dependencies needed by combat WS handlers.
type CombatHandlers struct {
	db     *gorm.DB
	svc    *combat.Service
	sm     *player.SessionManager
	game   config.GameConfig
	logger *zap.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewCombatHandlers creates a new CombatHandlers. rng may be nil, in which
// case a time-seeded source is used.
func NewCombatHandlers(db *gorm.DB, svc *combat.Service, sm *player.SessionManager, game config.GameConfig, logger *zap.Logger, rng *rand.Rand) *CombatHandlers {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &CombatHandlers{db: db, svc: svc, sm: sm, game: game, logger: logger, rng: rng}
}

// RegisterHandlers registers all combat handlers on the given Router.
func (ch *CombatHandlers) RegisterHandlers(r *Router) {
	r.On("ping", ch.HandlePing)
	r.On("submit_initiative", ch.HandleSubmitInitiative)
	r.On("advance_turn", ch.HandleAdvanceTurn)
	r.On("roll_test", ch.HandleRollTest)
	r.On("roll_damage", ch.HandleRollDamage)
	r.On("send_log", ch.HandleSendLog)
}

// ------------------------------------------------------------------ ping

type pingPayload struct {
	TS int64 `json:"ts"`
}

// HandlePing responds to client heartbeat pings.
func (ch *CombatHandlers) HandlePing(_ context.Context, s *player.Session, raw json.RawMessage) error {
	var p pingPayload
	_ = json.Unmarshal(raw, &p)
	s.SendHeartbeatPong(p.TS)
	return nil
}

// ------------------------------------------------------------------ submit_initiative

type submitInitiativeReq struct {
	CombatID string `json:"combat_id"`
	Value    int    `json:"value"`
}

// HandleSubmitInitiative records the session character's initiative roll.
func (ch *CombatHandlers) HandleSubmitInitiative(ctx context.Context, s *player.Session, raw json.RawMessage) error {
	var req submitInitiativeReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	charID, _ := s.Character()
	if charID == 0 {
		s.SendError("no_character", "no character bound to this session")
		return nil
	}
	_, err := ch.svc.SubmitInitiative(ctx, req.CombatID, charID, req.Value)
	switch {
	case errors.Is(err, combat.ErrNoCombat):
		s.SendError("combat_not_found", "combat not found")
	case errors.Is(err, combat.ErrNotParticipant):
		s.SendError("not_participant", "character is not in this combat")
	case err != nil:
		return err
	}
	return nil
}

// ------------------------------------------------------------------ advance_turn

type advanceTurnReq struct {
	CombatID string `json:"combat_id"`
}

// HandleAdvanceTurn ends the current turn. GMs may always advance; players
// only on their own character's turn.
func (ch *CombatHandlers) HandleAdvanceTurn(ctx context.Context, s *player.Session, raw json.RawMessage) error {
	var req advanceTurnReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	charID, _ := s.Character()
	_, err := ch.svc.AdvanceTurn(ctx, req.CombatID, charID, s.IsGM())
	switch {
	case errors.Is(err, combat.ErrNotYourTurn):
		s.SendError("not_your_turn", "it is not your turn")
	case errors.Is(err, combat.ErrCombatNotActive):
		s.SendError("combat_not_started", "combat has not started")
	case err != nil:
		return err
	}
	return nil
}

// ------------------------------------------------------------------ roll_test

type rollTestReq struct {
	ActionName string `json:"action_name"`
	Attribute  string `json:"attribute"`
	Mode       string `json:"mode"` // normal | advantage | disadvantage
	// Carried into the log entry so the GM can roll damage from it later.
	DamageFormula string `json:"damage_formula,omitempty"`
	Category      string `json:"category,omitempty"`
}

// HandleRollTest rolls a server-side d20 attribute test for the session's
// character, logs it into the active combat (when there is one) and the
// player's personal history, and echoes the entry back.
func (ch *CombatHandlers) HandleRollTest(ctx context.Context, s *player.Session, raw json.RawMessage) error {
	var req rollTestReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	char, ok := ch.sessionCharacter(s)
	if !ok {
		return nil
	}

	bonus := rules.AttackBonus(char.Attributes(), char.ProficientAttribute,
		strings.ToLower(req.Attribute), ch.game.ProficiencyAttack)

	ch.mu.Lock()
	res := dice.RollD20(ch.rng, req.Mode)
	ch.mu.Unlock()
	total := res.Kept + bonus

	msg := fmt.Sprintf("%s usou **%s**: Rolou **%d** (%d%+d).",
		char.Name, req.ActionName, total, res.Kept, bonus)
	logType := "info"
	if res.IsCritical() {
		msg += " **CRÍTICO!**"
		logType = "crit"
	} else if res.IsFumble() {
		msg += " **FALHA CRÍTICA!**"
		logType = "fail"
	}

	damageBonus := 0
	if req.DamageFormula != "" {
		inv := char.DecodeInventory()
		attr := strings.ToLower(inv.Weapon.Attribute)
		if attr == "" {
			attr = model.AttrAgility
		}
		damageBonus = char.Attributes().Get(attr)
	}

	entry := &model.LogEntry{
		ID:            time.Now().UnixMilli(),
		CharacterID:   char.ID,
		Message:       msg,
		Type:          logType,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		DamageFormula: req.DamageFormula,
		DamageBonus:   damageBonus,
		Category:      req.Category,
	}
	ch.recordEntry(ctx, s, char, entry)
	return nil
}

// ------------------------------------------------------------------ roll_damage

type rollDamageReq struct {
	Formula    string `json:"formula"`
	Category   string `json:"category"`
	Bonus      *int   `json:"bonus"` // overrides the sheet's weapon attribute bonus
	IsCritical bool   `json:"is_critical"`
}

// HandleRollDamage resolves a damage roll for the session's character,
// applying the heavy-weapon critical rule, and logs the result.
func (ch *CombatHandlers) HandleRollDamage(ctx context.Context, s *player.Session, raw json.RawMessage) error {
	var req rollDamageReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	char, ok := ch.sessionCharacter(s)
	if !ok {
		return nil
	}

	inv := char.DecodeInventory()
	formula := req.Formula
	if formula == "" {
		formula = inv.Weapon.Damage
	}
	if formula == "" {
		formula = ch.game.DefaultDamage
	}
	category := req.Category
	if category == "" {
		category = inv.Weapon.Category
	}

	var attrBonus int
	if req.Bonus != nil {
		attrBonus = *req.Bonus
	} else {
		attr := strings.ToLower(inv.Weapon.Attribute)
		if attr == "" {
			attr = model.AttrAgility
		}
		attrBonus = char.Attributes().Get(attr)
	}

	ch.mu.Lock()
	res := damage.Resolve(ch.rng, formula, category, attrBonus, req.IsCritical)
	ch.mu.Unlock()

	entry := &model.LogEntry{
		ID:          time.Now().UnixMilli(),
		CharacterID: char.ID,
		Message:     damageMessage(res),
		Type:        "damage",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	ch.recordEntry(ctx, s, char, entry)
	return nil
}

// damageMessage renders a resolved damage roll for the table log.
func damageMessage(res damage.Result) string {
	parts := make([]string, len(res.Rolls))
	for i, r := range res.Rolls {
		parts[i] = strconv.Itoa(r)
	}
	rollsStr := strings.Join(parts, "+")
	bonusStr := ""
	if res.Bonus != 0 {
		bonusStr = fmt.Sprintf(" + %d", res.Bonus)
	}
	critText := ""
	if res.IsCritical {
		critText = fmt.Sprintf(" (Crítico x%d!)", res.Multiplier)
	}
	return fmt.Sprintf("Dano: **%d** [%s%s]%s", res.Total, rollsStr, bonusStr, critText)
}

// ------------------------------------------------------------------ send_log

type sendLogReq struct {
	CombatID string `json:"combat_id"`
	Message  string `json:"message"`
	Type     string `json:"type"`
	// Optional damage metadata so the table can roll from the entry.
	DamageFormula string `json:"damage_formula,omitempty"`
	DamageBonus   int    `json:"damage_bonus,omitempty"`
	Category      string `json:"category,omitempty"`
}

// HandleSendLog appends a free-form entry to the combat log (GM only).
func (ch *CombatHandlers) HandleSendLog(ctx context.Context, s *player.Session, raw json.RawMessage) error {
	if !s.IsGM() {
		s.SendError("forbidden", "only the gm can send log entries")
		return nil
	}
	var req sendLogReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	if req.Message == "" {
		s.SendError("bad_request", "empty message")
		return nil
	}
	logType := req.Type
	if logType == "" {
		logType = "info"
	}
	entry := &model.LogEntry{
		ID:            time.Now().UnixMilli(),
		Message:       req.Message,
		Type:          logType,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		DamageFormula: req.DamageFormula,
		DamageBonus:   req.DamageBonus,
		Category:      req.Category,
	}
	_, err := ch.svc.SendLog(ctx, req.CombatID, entry)
	if errors.Is(err, combat.ErrNoCombat) {
		s.SendError("combat_not_found", "combat not found")
		return nil
	}
	if err != nil {
		return err
	}
	ch.echoEntry(s, entry)
	return nil
}

// ------------------------------------------------------------------ helpers

// sessionCharacter loads the session's bound character fresh from the
// store, so rolls always use current sheet data.
func (ch *CombatHandlers) sessionCharacter(s *player.Session) (*model.Character, bool) {
	charID, _ := s.Character()
	if charID == 0 {
		s.SendError("no_character", "no character bound to this session")
		return nil, false
	}
	var char model.Character
	if err := ch.db.First(&char, charID).Error; err != nil {
		s.SendError("no_character", "character not found")
		return nil, false
	}
	return &char, true
}

// recordEntry routes a finished roll into the combat log (when the
// character is in one), the player's personal history, and back to the
// sender. A roll outside combat still lands in the history.
func (ch *CombatHandlers) recordEntry(ctx context.Context, s *player.Session, char *model.Character, entry *model.LogEntry) {
	if char.ActiveCombatID != nil {
		if _, err := ch.svc.SendLog(ctx, *char.ActiveCombatID, entry); err != nil && !errors.Is(err, combat.ErrNoCombat) {
			ch.logger.Warn("combat log send failed",
				zap.String("combat_id", *char.ActiveCombatID), zap.Error(err))
		}
	}
	if err := ch.svc.Logs().AppendHistory(ctx, char.ID, entry); err != nil {
		ch.logger.Warn("roll history append failed",
			zap.Int64("char_id", char.ID), zap.Error(err))
	}
	ch.echoEntry(s, entry)
}

// echoEntry confirms a logged roll back to the sender.
func (ch *CombatHandlers) echoEntry(s *player.Session, entry *model.LogEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	s.Send(&player.Packet{Type: "roll_logged", Payload: payload})
}
