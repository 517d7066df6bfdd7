package player

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSession(accountID int64, role string) *Session {
	return &Session{
		AccountID: accountID,
		Role:      role,
		SendChan:  make(chan []byte, 16),
		Done:      make(chan struct{}),
		logger:    zap.NewNop(),
	}
}

func TestRegisterAndGet(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())

	s := testSession(1, "player")
	sm.Register(s)

	assert.Equal(t, s, sm.Get(1))
	assert.True(t, sm.IsOnline(1))
	assert.Equal(t, 1, sm.Count())
	assert.Nil(t, sm.Get(2))
}

func TestRegisterDisplacesDuplicate(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())

	old := testSession(1, "player")
	sm.Register(old)
	replacement := testSession(1, "player")
	sm.Register(replacement)

	assert.Equal(t, 1, sm.Count())
	assert.Equal(t, replacement, sm.Get(1))
	// The displaced session was closed so its pumps shut down.
	assert.True(t, old.IsClosed())
	assert.False(t, replacement.IsClosed())
}

func TestUnregister(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())

	sm.Register(testSession(1, "player"))
	sm.Unregister(1)

	assert.Nil(t, sm.Get(1))
	assert.False(t, sm.IsOnline(1))
	assert.Equal(t, 0, sm.Count())
}

func TestSweepClosed(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())

	alive := testSession(1, "player")
	dead := testSession(2, "player")
	sm.Register(alive)
	sm.Register(dead)
	dead.Close()

	assert.Equal(t, 1, sm.SweepClosed())
	assert.Equal(t, alive, sm.Get(1))
	assert.Nil(t, sm.Get(2))
	assert.Equal(t, 0, sm.SweepClosed())
}

func TestGetByCharacter(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())

	s := testSession(1, "player")
	s.SetCharacter(42, "Li Wei")
	sm.Register(s)
	sm.Register(testSession(2, "gm"))

	assert.Equal(t, s, sm.GetByCharacter(42))
	assert.Nil(t, sm.GetByCharacter(7))
}

func TestBroadcastToAll(t *testing.T) {
	sm := NewSessionManager(zap.NewNop())

	a := testSession(1, "player")
	b := testSession(2, "gm")
	sm.Register(a)
	sm.Register(b)

	sm.BroadcastToAll(&Packet{Type: "announce"})

	for _, s := range []*Session{a, b} {
		select {
		case data := <-s.SendChan:
			var pkt Packet
			require.NoError(t, json.Unmarshal(data, &pkt))
			assert.Equal(t, "announce", pkt.Type)
		default:
			t.Fatalf("session %d received nothing", s.AccountID)
		}
	}
}

func TestSessionSendAfterClose(t *testing.T) {
	s := testSession(1, "player")
	s.Close()

	// Dropped silently, no panic on the closed session.
	s.Send(&Packet{Type: "late"})
	select {
	case data := <-s.SendChan:
		t.Fatalf("unexpected packet: %s", data)
	default:
	}
}

func TestIsGM(t *testing.T) {
	assert.True(t, testSession(1, "gm").IsGM())
	assert.False(t, testSession(2, "player").IsGM())
}
