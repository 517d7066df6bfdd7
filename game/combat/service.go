package combat

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jianghu-companion/server/audit"
	"github.com/jianghu-companion/server/cache"
	"github.com/jianghu-companion/server/game/dice"
	"github.com/jianghu-companion/server/model"
)

var (
	// ErrNoCombat means the GM has no combat row.
	ErrNoCombat = errors.New("combat: no active combat")
	// ErrNotParticipant means the character is not in the turn order.
	ErrNotParticipant = errors.New("combat: character not in combat")
	// ErrNotYourTurn means a player tried to advance outside their turn.
	ErrNotYourTurn = errors.New("combat: not your turn")
	// ErrCombatNotActive means the operation needs an active (started) combat.
	ErrCombatNotActive = errors.New("combat: combat not active")
	// ErrEmptyRoster means a combat cannot be created without participants.
	ErrEmptyRoster = errors.New("combat: empty roster")
)

// Service owns the combat lifecycle. Every mutation re-fetches the
// authoritative row, applies the change and saves, so concurrent writers
// converge on last-write-wins per field rather than clobbering whole rows.
type Service struct {
	db     *gorm.DB
	pubsub cache.PubSub
	logs   *LogStore
	audit  *audit.Service
	logger *zap.Logger

	mu  sync.Mutex // serializes mutations within this process
	rng *rand.Rand
}

// NewService creates a combat Service. audit may be nil to disable audit
// trails. rng may be nil, in which case a time-seeded source is used;
// tests inject a fixed seed.
func NewService(db *gorm.DB, ps cache.PubSub, logs *LogStore, auditSvc *audit.Service, logger *zap.Logger, rng *rand.Rand) *Service {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, pubsub: ps, logs: logs, audit: auditSvc, logger: logger, rng: rng}
}

// auditAction records a combat lifecycle action when auditing is enabled.
func (s *Service) auditAction(gmID int64, action string, request interface{}, errMsg string) {
	if s.audit == nil {
		return
	}
	s.audit.Log(audit.AuditEntry{
		AccountID: &gmID,
		Action:    action,
		Request:   request,
		Error:     errMsg,
	})
}

// Logs exposes the log store for the API layer.
func (s *Service) Logs() *LogStore { return s.logs }

// Create starts a new combat for gmID from the given character ids,
// snapshotting each character into a Participant. Any pre-existing combat
// of the same GM is ended first. NPCs get their initiative rolled
// immediately (1d20 + agility); player slots stay nil until submitted.
func (s *Service) Create(ctx context.Context, gmID int64, characterIDs []int64) (*model.Combat, error) {
	if len(characterIDs) == 0 {
		return nil, ErrEmptyRoster
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.endLocked(ctx, gmID); err != nil {
		return nil, err
	}

	var chars []model.Character
	if err := s.db.WithContext(ctx).Where("id IN ?", characterIDs).Find(&chars).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.Character, len(chars))
	for i := range chars {
		byID[chars[i].ID] = &chars[i]
	}

	order := make([]model.Participant, 0, len(characterIDs))
	for _, id := range characterIDs {
		c, ok := byID[id]
		if !ok {
			continue
		}
		p := model.Participant{
			CharacterID: c.ID,
			UserID:      c.AccountID,
			Name:        c.Name,
			ImageURL:    c.ImageURL,
			Attributes:  c.Attributes(),
			IsNPC:       c.IsNPC,
		}
		if c.IsNPC {
			init := dice.Roll(s.rng, 1, 20).Total + p.Attributes.Agility
			p.Initiative = &init
		}
		order = append(order, p)
	}
	if len(order) == 0 {
		return nil, ErrEmptyRoster
	}

	cb := &model.Combat{
		ID:     uuid.NewString(),
		GMID:   gmID,
		Status: model.CombatPendingInitiative,
	}
	cb.EncodeTurnOrder(order)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cb).Error; err != nil {
			return err
		}
		ids := make([]int64, 0, len(order))
		for _, p := range order {
			ids = append(ids, p.CharacterID)
		}
		return tx.Model(&model.Character{}).
			Where("id IN ?", ids).
			Update("active_combat_id", cb.ID).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, gmID, &ChangeEvent{Event: EventInsert, CombatID: cb.ID, Combat: cb})
	s.auditAction(gmID, "combat.create", map[string]interface{}{
		"combat_id": cb.ID, "character_ids": characterIDs,
	}, "")
	s.logger.Info("combat created",
		zap.String("combat_id", cb.ID),
		zap.Int64("gm_id", gmID),
		zap.Int("participants", len(order)))
	return cb, nil
}

// Get returns the GM's combat, ErrNoCombat if none exists.
func (s *Service) Get(ctx context.Context, gmID int64) (*model.Combat, error) {
	var cb model.Combat
	err := s.db.WithContext(ctx).Where("gm_id = ?", gmID).First(&cb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoCombat
	}
	if err != nil {
		return nil, err
	}
	return &cb, nil
}

// GetByID returns a combat by id, ErrNoCombat if it no longer exists.
func (s *Service) GetByID(ctx context.Context, combatID string) (*model.Combat, error) {
	var cb model.Combat
	err := s.db.WithContext(ctx).Where("id = ?", combatID).First(&cb).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoCombat
	}
	if err != nil {
		return nil, err
	}
	return &cb, nil
}

// SubmitInitiative records a player's rolled initiative for their character.
// Only an empty slot is filled; a second submit for the same character is a
// no-op, so the first roll wins under concurrent delivery.
func (s *Service) SubmitInitiative(ctx context.Context, combatID string, characterID int64, value int) (*model.Combat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, err := s.GetByID(ctx, combatID)
	if err != nil {
		return nil, err
	}
	order := cb.DecodeTurnOrder()
	idx := model.ParticipantIndex(order, characterID)
	if idx < 0 {
		return nil, ErrNotParticipant
	}
	if order[idx].Initiative != nil {
		return cb, nil
	}
	order[idx].Initiative = &value
	cb.EncodeTurnOrder(order)
	if err := s.db.WithContext(ctx).Model(cb).Update("turn_order", cb.TurnOrder).Error; err != nil {
		return nil, err
	}
	s.publish(ctx, cb.GMID, &ChangeEvent{Event: EventUpdate, CombatID: cb.ID, Combat: cb})
	return cb, nil
}

// ForceRoll lets the GM roll initiative for the participant at index.
// Filled slots are left untouched.
func (s *Service) ForceRoll(ctx context.Context, gmID int64, index int) (*model.Combat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, err := s.Get(ctx, gmID)
	if err != nil {
		return nil, err
	}
	order := cb.DecodeTurnOrder()
	if index < 0 || index >= len(order) {
		return nil, ErrNotParticipant
	}
	if order[index].Initiative != nil {
		return cb, nil
	}
	init := dice.Roll(s.rng, 1, 20).Total + order[index].Attributes.Agility
	order[index].Initiative = &init
	cb.EncodeTurnOrder(order)
	if err := s.db.WithContext(ctx).Model(cb).Update("turn_order", cb.TurnOrder).Error; err != nil {
		return nil, err
	}
	s.publish(ctx, cb.GMID, &ChangeEvent{Event: EventUpdate, CombatID: cb.ID, Combat: cb})
	return cb, nil
}

// StartRound fills any remaining empty initiative slots with GM-side rolls,
// sorts the order by initiative descending (stable, so creation order breaks
// ties), resets the turn pointer and marks the combat active.
func (s *Service) StartRound(ctx context.Context, gmID int64) (*model.Combat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, err := s.Get(ctx, gmID)
	if err != nil {
		return nil, err
	}
	order := cb.DecodeTurnOrder()
	for i := range order {
		if order[i].Initiative == nil {
			init := dice.Roll(s.rng, 1, 20).Total + order[i].Attributes.Agility
			order[i].Initiative = &init
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return *order[i].Initiative > *order[j].Initiative
	})
	cb.EncodeTurnOrder(order)
	cb.Status = model.CombatActive
	cb.CurrentTurnIndex = 0
	err = s.db.WithContext(ctx).Model(cb).Updates(map[string]any{
		"turn_order":         cb.TurnOrder,
		"status":             cb.Status,
		"current_turn_index": cb.CurrentTurnIndex,
	}).Error
	if err != nil {
		return nil, err
	}
	s.publish(ctx, cb.GMID, &ChangeEvent{Event: EventUpdate, CombatID: cb.ID, Combat: cb})
	s.auditAction(gmID, "combat.start_round", map[string]interface{}{"combat_id": cb.ID}, "")
	s.logger.Info("combat round started", zap.String("combat_id", cb.ID))
	return cb, nil
}

// AdvanceTurn moves the turn pointer to the next participant, wrapping at
// the end of the order. The GM may always advance; a player may only end
// their own character's turn. A vanished combat is a silent no-op so
// clients racing an ended combat do not surface errors.
func (s *Service) AdvanceTurn(ctx context.Context, combatID string, actorCharacterID int64, isGM bool) (*model.Combat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, err := s.GetByID(ctx, combatID)
	if errors.Is(err, ErrNoCombat) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if cb.Status != model.CombatActive {
		return nil, ErrCombatNotActive
	}
	order := cb.DecodeTurnOrder()
	if len(order) == 0 {
		return cb, nil
	}
	if !isGM {
		cur := order[cb.CurrentTurnIndex%len(order)]
		if cur.CharacterID != actorCharacterID {
			return nil, ErrNotYourTurn
		}
	}
	cb.CurrentTurnIndex = (cb.CurrentTurnIndex + 1) % len(order)
	if err := s.db.WithContext(ctx).Model(cb).Update("current_turn_index", cb.CurrentTurnIndex).Error; err != nil {
		return nil, err
	}
	s.publish(ctx, cb.GMID, &ChangeEvent{Event: EventUpdate, CombatID: cb.ID, Combat: cb})
	return cb, nil
}

// SendLog appends an entry to the GM log, mirrors it into the combat's
// single last-roll slot and publishes the update. The last-roll slot is
// last-write-wins under concurrent senders; the log itself keeps every
// distinct entry.
func (s *Service) SendLog(ctx context.Context, combatID string, e *model.LogEntry) (*model.Combat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, err := s.GetByID(ctx, combatID)
	if err != nil {
		return nil, err
	}
	if err := s.logs.AppendGM(ctx, combatID, e); err != nil {
		s.logger.Warn("combat log append failed",
			zap.String("combat_id", combatID), zap.Error(err))
	}
	cb.EncodeLastRoll(e)
	if err := s.db.WithContext(ctx).Model(cb).Update("last_roll", cb.LastRoll).Error; err != nil {
		return nil, err
	}
	s.publish(ctx, cb.GMID, &ChangeEvent{Event: EventUpdate, CombatID: cb.ID, Combat: cb})
	return cb, nil
}

// End deletes the GM's combat, clears participant back-references and the
// stored log, and publishes a delete event. Ending when no combat exists
// is a no-op.
func (s *Service) End(ctx context.Context, gmID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endLocked(ctx, gmID)
}

func (s *Service) endLocked(ctx context.Context, gmID int64) error {
	cb, err := s.Get(ctx, gmID)
	if errors.Is(err, ErrNoCombat) {
		return nil
	}
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Character{}).
			Where("active_combat_id = ?", cb.ID).
			Update("active_combat_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Combat{}, "id = ?", cb.ID).Error
	})
	if err != nil {
		return err
	}
	if err := s.logs.ClearGM(ctx, cb.ID); err != nil {
		s.logger.Warn("combat log clear failed",
			zap.String("combat_id", cb.ID), zap.Error(err))
	}
	s.publish(ctx, gmID, &ChangeEvent{Event: EventDelete, CombatID: cb.ID})
	s.auditAction(gmID, "combat.end", map[string]interface{}{"combat_id": cb.ID}, "")
	s.logger.Info("combat ended", zap.String("combat_id", cb.ID), zap.Int64("gm_id", gmID))
	return nil
}
