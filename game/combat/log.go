package combat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jianghu-companion/server/cache"
	"github.com/jianghu-companion/server/model"
)

const defaultHistoryCap = 50

// LogStore keeps the GM's per-combat log and each player's personal roll
// history in the cache. Both are deduplicated by entry id so that the
// optimistic local append and the realtime echo of the same roll collapse
// into one entry.
type LogStore struct {
	mu         sync.Mutex // serializes read-modify-write on the GM log
	cache      cache.Cache
	historyCap int
}

// NewLogStore creates a LogStore. historyCap bounds the player roll
// history; values <= 0 fall back to the default cap.
func NewLogStore(c cache.Cache, historyCap int) *LogStore {
	if historyCap <= 0 {
		historyCap = defaultHistoryCap
	}
	return &LogStore{cache: c, historyCap: historyCap}
}

func gmLogKey(combatID string) string { return "combat:log:" + combatID }

func historyKey(characterID int64) string {
	return fmt.Sprintf("roll:history:%d", characterID)
}

// AppendGM appends an entry to the GM log for combatID. Entries with an
// already-present id are silently dropped.
func (ls *LogStore) AppendGM(ctx context.Context, combatID string, e *model.LogEntry) error {
	if e == nil || e.ID == 0 {
		return nil
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()

	entries, err := ls.readGM(ctx, combatID)
	if err != nil {
		return err
	}
	for _, have := range entries {
		if have.ID == e.ID {
			return nil
		}
	}
	entries = append(entries, *e)
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return ls.cache.Set(ctx, gmLogKey(combatID), string(raw), 0)
}

// GMLog returns the full log for combatID in append order.
func (ls *LogStore) GMLog(ctx context.Context, combatID string) ([]model.LogEntry, error) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.readGM(ctx, combatID)
}

// ClearGM drops the stored log for combatID. Called when the combat ends.
func (ls *LogStore) ClearGM(ctx context.Context, combatID string) error {
	return ls.cache.Del(ctx, gmLogKey(combatID))
}

func (ls *LogStore) readGM(ctx context.Context, combatID string) ([]model.LogEntry, error) {
	val, err := ls.cache.Get(ctx, gmLogKey(combatID))
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []model.LogEntry
	if err := json.Unmarshal([]byte(val), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// AppendHistory prepends an entry to a player's personal roll history and
// trims it to the configured cap, evicting the oldest entries. Duplicate
// ids are dropped.
func (ls *LogStore) AppendHistory(ctx context.Context, characterID int64, e *model.LogEntry) error {
	if e == nil || e.ID == 0 {
		return nil
	}
	key := historyKey(characterID)
	existing, err := ls.cache.LRange(ctx, key, 0, int64(ls.historyCap)-1)
	if err != nil && !cache.IsNotFound(err) {
		return err
	}
	for _, item := range existing {
		var have model.LogEntry
		if json.Unmarshal([]byte(item), &have) == nil && have.ID == e.ID {
			return nil
		}
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := ls.cache.LPush(ctx, key, string(raw)); err != nil {
		return err
	}
	return ls.cache.LTrim(ctx, key, 0, int64(ls.historyCap)-1)
}

// History returns a player's roll history, most recent first.
func (ls *LogStore) History(ctx context.Context, characterID int64) ([]model.LogEntry, error) {
	items, err := ls.cache.LRange(ctx, historyKey(characterID), 0, int64(ls.historyCap)-1)
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	entries := make([]model.LogEntry, 0, len(items))
	for _, item := range items {
		var e model.LogEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

