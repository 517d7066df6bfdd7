package combat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jianghu-companion/server/model"
	"go.uber.org/zap"
)

// Change feed event kinds, mirroring row-level store changes.
const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

// ChangeEvent is one combat row change, published on both the GM-scoped and
// the combat-scoped channels. Delete events carry only the combat id.
type ChangeEvent struct {
	Event    string        `json:"event"`
	CombatID string        `json:"combat_id"`
	Combat   *model.Combat `json:"combat,omitempty"`
}

// GMChannel is the pub/sub channel scoped to one GM's combat row.
func GMChannel(gmID int64) string {
	return fmt.Sprintf("combat:gm:%d", gmID)
}

// Channel is the pub/sub channel scoped to one combat row by id.
func Channel(combatID string) string {
	return "combat:id:" + combatID
}

// publish fans the event out to both scoped channels. Delivery is
// best-effort: watchers also poll, so a dropped notification only delays
// the update by one poll interval.
func (s *Service) publish(ctx context.Context, gmID int64, ev *ChangeEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("combat event marshal failed", zap.Error(err))
		return
	}
	payload := string(raw)
	if err := s.pubsub.Publish(ctx, GMChannel(gmID), payload); err != nil {
		s.logger.Warn("combat event publish failed",
			zap.String("channel", GMChannel(gmID)), zap.Error(err))
	}
	if err := s.pubsub.Publish(ctx, Channel(ev.CombatID), payload); err != nil {
		s.logger.Warn("combat event publish failed",
			zap.String("channel", Channel(ev.CombatID)), zap.Error(err))
	}
}
