package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jianghu-companion/server/cache"
	"github.com/jianghu-companion/server/game/combat"
	"github.com/jianghu-companion/server/game/player"
	"github.com/jianghu-companion/server/model"
)

const defaultPollEvery = time.Second

// Watcher pushes combat state to connected sessions. Each session gets one
// watch goroutine that combines pub/sub notifications with a steady poll,
// so a dropped notification is repaired within one poll interval. Duplicate
// deliveries are filtered by snapshot comparison.
type Watcher struct {
	svc       *combat.Service
	db        *gorm.DB
	pubsub    cache.PubSub
	pollEvery time.Duration
	logger    *zap.Logger
}

// NewWatcher creates a Watcher. pollEvery <= 0 falls back to one second.
func NewWatcher(svc *combat.Service, db *gorm.DB, ps cache.PubSub, pollEvery time.Duration, logger *zap.Logger) *Watcher {
	if pollEvery <= 0 {
		pollEvery = defaultPollEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{svc: svc, db: db, pubsub: ps, pollEvery: pollEvery, logger: logger}
}

// Watch runs until the session closes or ctx is canceled. Callers start it
// as a goroutine right after the session is registered.
func (w *Watcher) Watch(ctx context.Context, sess *player.Session) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sess.Done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if sess.IsGM() {
		w.watchGM(ctx, sess)
		return
	}
	w.watchPlayer(ctx, sess)
}

// watchGM follows the GM-scoped channel, which survives combat deletion and
// recreation, so one subscription covers the whole session.
func (w *Watcher) watchGM(ctx context.Context, sess *player.Session) {
	ch, unsub, err := w.pubsub.Subscribe(ctx, combat.GMChannel(sess.AccountID))
	if err != nil {
		w.logger.Warn("gm combat subscribe failed",
			zap.Int64("account_id", sess.AccountID), zap.Error(err))
		ch = nil
	}
	if unsub != nil {
		defer unsub()
	}

	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	var last []byte
	last = w.refreshGM(ctx, sess, last)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			last = w.refreshGM(ctx, sess, last)
		case <-ticker.C:
			last = w.refreshGM(ctx, sess, last)
		}
	}
}

func (w *Watcher) refreshGM(ctx context.Context, sess *player.Session, last []byte) []byte {
	cb, err := w.svc.Get(ctx, sess.AccountID)
	if err != nil && !errors.Is(err, combat.ErrNoCombat) {
		w.logger.Warn("gm combat fetch failed",
			zap.Int64("account_id", sess.AccountID), zap.Error(err))
		return last
	}
	return pushIfChanged(sess, cb, last)
}

// watchPlayer follows the combat the player's character is currently in.
// The character's combat binding changes over time, so the subscription is
// torn down and re-established whenever the binding moves.
func (w *Watcher) watchPlayer(ctx context.Context, sess *player.Session) {
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	var (
		watchedID string
		ch        <-chan *cache.Message
		unsub     func()
		last      []byte
		prompted  string // combat id the initiative prompt was already sent for
	)
	defer func() {
		if unsub != nil {
			unsub()
		}
	}()

	refresh := func() {
		combatID := w.activeCombatID(ctx, sess)
		if combatID != watchedID {
			if unsub != nil {
				unsub()
				unsub = nil
				ch = nil
			}
			watchedID = combatID
			if combatID != "" {
				var err error
				ch, unsub, err = w.pubsub.Subscribe(ctx, combat.Channel(combatID))
				if err != nil {
					w.logger.Warn("combat subscribe failed",
						zap.String("combat_id", combatID), zap.Error(err))
					ch, unsub = nil, nil
				}
			}
		}

		var cb *model.Combat
		if watchedID != "" {
			var err error
			cb, err = w.svc.GetByID(ctx, watchedID)
			if err != nil && !errors.Is(err, combat.ErrNoCombat) {
				w.logger.Warn("combat fetch failed",
					zap.String("combat_id", watchedID), zap.Error(err))
				return
			}
		}
		last = pushIfChanged(sess, cb, last)
		if cb != nil && needsInitiative(cb, sess) && prompted != cb.ID {
			prompted = cb.ID
			sess.Send(&player.Packet{Type: "initiative_prompt",
				Payload: mustJSON(map[string]string{"combat_id": cb.ID})})
		}
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				ch = nil
				continue
			}
			refresh()
		case <-ticker.C:
			refresh()
		}
	}
}

// activeCombatID reads the character's current combat binding from the
// store. Sessions without a bound character watch nothing.
func (w *Watcher) activeCombatID(ctx context.Context, sess *player.Session) string {
	charID, _ := sess.Character()
	if charID == 0 {
		return ""
	}
	var c model.Character
	err := w.db.WithContext(ctx).Select("active_combat_id").
		Where("id = ?", charID).First(&c).Error
	if err != nil || c.ActiveCombatID == nil {
		return ""
	}
	return *c.ActiveCombatID
}

// pushIfChanged sends combat_update when the serialized snapshot differs
// from the previous delivery, or combat_ended when a previously seen combat
// disappears. Returns the new snapshot baseline.
func pushIfChanged(sess *player.Session, cb *model.Combat, last []byte) []byte {
	if cb == nil {
		if last != nil {
			sess.Send(&player.Packet{Type: "combat_ended"})
		}
		return nil
	}
	snap, err := json.Marshal(cb)
	if err != nil {
		return last
	}
	if bytes.Equal(snap, last) {
		return last
	}
	sess.Send(&player.Packet{Type: "combat_update", Payload: snap})
	return snap
}

// needsInitiative reports whether the session's character still has an
// empty initiative slot in a pending combat.
func needsInitiative(cb *model.Combat, sess *player.Session) bool {
	if cb.Status != model.CombatPendingInitiative {
		return false
	}
	charID, _ := sess.Character()
	order := cb.DecodeTurnOrder()
	idx := model.ParticipantIndex(order, charID)
	return idx >= 0 && order[idx].Initiative == nil
}

func mustJSON(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}
