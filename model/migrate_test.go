package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jianghu-companion/server/model"
	"github.com/jianghu-companion/server/testutil"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Account
	acc := &model.Account{Username: "test_user", PasswordHash: "hash", Role: model.RolePlayer, Status: 1}
	require.NoError(t, db.Create(acc).Error)
	assert.Greater(t, acc.ID, int64(0))

	var found model.Account
	require.NoError(t, db.First(&found, acc.ID).Error)
	assert.Equal(t, "test_user", found.Username)

	// Character with JSON columns round-tripping
	char := &model.Character{
		AccountID:           acc.ID,
		Name:                "Li Wei",
		ClanID:              "punho_ferro",
		Vigor:               3,
		Agility:             2,
		ProficientAttribute: model.AttrAgility,
	}
	char.EncodeInventory(model.CharacterInventory{
		Weapon: model.Weapon{Name: "Lança", Category: "pesada", Damage: "1d8", Attribute: "vigor"},
		Armor:  model.Armor{Type: "medium", Name: "Couro"},
	})
	char.EncodeStats(model.LiveStats{CurrentHP: 12, CurrentChi: 6})
	require.NoError(t, db.Create(char).Error)
	assert.Greater(t, char.ID, int64(0))

	var loaded model.Character
	require.NoError(t, db.First(&loaded, char.ID).Error)
	inv := loaded.DecodeInventory()
	assert.Equal(t, "pesada", inv.Weapon.Category)
	assert.Equal(t, "medium", inv.Armor.Type)
	assert.Equal(t, 12, loaded.DecodeStats().CurrentHP)

	// Combat
	cb := &model.Combat{ID: "combat-1", GMID: acc.ID, Status: model.CombatPendingInitiative}
	cb.EncodeTurnOrder([]model.Participant{{CharacterID: char.ID, UserID: acc.ID, Name: char.Name}})
	require.NoError(t, db.Create(cb).Error)

	var loadedCb model.Combat
	require.NoError(t, db.First(&loadedCb, "id = ?", "combat-1").Error)
	order := loadedCb.DecodeTurnOrder()
	require.Len(t, order, 1)
	assert.Equal(t, char.ID, order[0].CharacterID)
	assert.Nil(t, order[0].Initiative)

	// AuditLog
	al := &model.AuditLog{TraceID: "trace-001", Action: "combat.create", CreatedAt: time.Now()}
	require.NoError(t, db.Create(al).Error)
}

func TestCombatGMUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)

	first := &model.Combat{ID: "c1", GMID: 7, Status: model.CombatPendingInitiative}
	require.NoError(t, db.Create(first).Error)

	// The unique GM index rejects a second concurrent combat for the same GM.
	second := &model.Combat{ID: "c2", GMID: 7, Status: model.CombatPendingInitiative}
	assert.Error(t, db.Create(second).Error)
}

func TestDecodeInventoryDefaults(t *testing.T) {
	c := &model.Character{}
	inv := c.DecodeInventory()
	assert.Equal(t, "none", inv.Armor.Type)
	assert.Empty(t, inv.Weapon.Damage)
}

func TestDecodeLastRollEmpty(t *testing.T) {
	cb := &model.Combat{}
	assert.Nil(t, cb.DecodeLastRoll())

	cb.EncodeLastRoll(&model.LogEntry{ID: 5, Message: "x"})
	e := cb.DecodeLastRoll()
	require.NotNil(t, e)
	assert.Equal(t, int64(5), e.ID)
}

func TestAttributeSetGet(t *testing.T) {
	a := model.AttributeSet{Vigor: 1, Agility: 2, Discipline: 3, Comprehension: 4, Presence: 5}
	assert.Equal(t, 1, a.Get(model.AttrVigor))
	assert.Equal(t, 2, a.Get(model.AttrAgility))
	assert.Equal(t, 5, a.Get(model.AttrPresence))
	assert.Equal(t, 0, a.Get("luck"))
}
