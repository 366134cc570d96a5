package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanley-fork/variant-go-server/internal/apperror"
	"github.com/stanley-fork/variant-go-server/internal/entity"
)

const waitFor = 2 * time.Second

const tick = 5 * time.Millisecond

// fakePusher records everything pushed to a session.
type fakePusher struct {
	mu     sync.Mutex
	events []entity.Event
}

func (that *fakePusher) Push(event entity.Event) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.events = append(that.events, event)
}

func (that *fakePusher) lastStatus() (entity.RoomStatusEvent, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for i := len(that.events) - 1; i >= 0; i-- {
		if status, ok := that.events[i].(entity.RoomStatusEvent); ok {
			return status, true
		}
	}

	return entity.RoomStatusEvent{}, false
}

func (that *fakePusher) countClosed(roomID uint32) int {
	that.mu.Lock()
	defer that.mu.Unlock()

	count := 0
	for _, event := range that.events {
		if closed, ok := event.(entity.RoomClosedEvent); ok && closed.RoomID == roomID {
			count++
		}
	}

	return count
}

func (that *fakePusher) countRejects() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	count := 0
	for _, event := range that.events {
		if _, ok := event.(entity.ActionRejectedEvent); ok {
			count++
		}
	}

	return count
}

func (that *fakePusher) lastReject() (entity.ActionRejectedEvent, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for i := len(that.events) - 1; i >= 0; i-- {
		if reject, ok := that.events[i].(entity.ActionRejectedEvent); ok {
			return reject, true
		}
	}

	return entity.ActionRejectedEvent{}, false
}

func (that *fakePusher) countIdentify() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	count := 0
	for _, event := range that.events {
		if _, ok := event.(entity.IdentifyEvent); ok {
			count++
		}
	}

	return count
}

func (that *fakePusher) profileOf(userID uint64) (entity.PublicProfile, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for i := len(that.events) - 1; i >= 0; i-- {
		if update, ok := that.events[i].(entity.ProfileUpdatedEvent); ok && update.Profile.UserID == userID {
			return update.Profile, true
		}
	}

	return entity.PublicProfile{}, false
}

func (that *fakePusher) hasAnnounce(roomID uint32) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	for _, event := range that.events {
		if announce, ok := event.(entity.RoomAnnouncedEvent); ok && announce.RoomID == roomID {
			return true
		}
	}

	return false
}

// fakeProfiles is an in-memory stand-in for the profile service.
type fakeProfiles struct {
	mu      sync.Mutex
	byToken map[string]*entity.Profile
	byID    map[uint64]*entity.Profile
	nextID  uint64
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		byToken: make(map[string]*entity.Profile),
		byID:    make(map[uint64]*entity.Profile),
	}
}

func (that *fakeProfiles) Identify(_ context.Context, token, nick string) (*entity.Profile, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if token == "" {
		token = fmt.Sprintf("token-%d", that.nextID+1)
	}

	profile, ok := that.byToken[token]
	if !ok {
		that.nextID++
		profile = &entity.Profile{UserID: that.nextID, Token: token}
		that.byToken[token] = profile
		that.byID[profile.UserID] = profile
	}

	if nick != "" {
		profile.Nick = nick
	}

	clone := *profile

	return &clone, nil
}

func (that *fakeProfiles) GetByUserID(_ context.Context, userID uint64) (*entity.Profile, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	profile, ok := that.byID[userID]
	if !ok {
		return nil, apperror.ErrProfileNotFound
	}

	clone := *profile

	return &clone, nil
}

func newTestCoordinator(t *testing.T, sweepInterval, idleTimeout time.Duration) *Coordinator {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	coordinator := NewCoordinator(logger, newFakeProfiles(), sweepInterval, idleTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go coordinator.Run(ctx)

	return coordinator
}

// identifiedSession connects a fresh session and binds it to the token.
func identifiedSession(t *testing.T, coordinator *Coordinator, token string) (uint64, uint64, *fakePusher) {
	t.Helper()

	pusher := &fakePusher{}
	sessionID := coordinator.Connect(pusher)

	profile, err := coordinator.Identify(sessionID, token, "")
	require.NoError(t, err)

	return sessionID, profile.UserID, pusher
}

func TestCoordinator_Identify(t *testing.T) {
	t.Run("Same token converges on one identity across sessions", func(t *testing.T) {
		// Given: two connected sessions
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		pusherA := &fakePusher{}
		pusherB := &fakePusher{}
		sessA := coordinator.Connect(pusherA)
		sessB := coordinator.Connect(pusherB)

		// When: both identify with the same token
		profileA, err := coordinator.Identify(sessA, "alpha", "ann")
		require.NoError(t, err)
		profileB, err := coordinator.Identify(sessB, "alpha", "")
		require.NoError(t, err)

		// Then: they resolve to one user and both tabs saw the second identify
		assert.Equal(t, profileA.UserID, profileB.UserID)
		assert.Equal(t, 2, pusherA.countIdentify())
		assert.Equal(t, 1, pusherB.countIdentify())
	})

	t.Run("Unknown session is rejected", func(t *testing.T) {
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)

		_, err := coordinator.Identify(999, "alpha", "")

		require.ErrorIs(t, err, apperror.ErrUnidentified)
	})

	t.Run("Rebinding detaches the session from its old identity", func(t *testing.T) {
		// Given: a session bound to one identity, then rebound to another
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		pusherA := &fakePusher{}
		sessA := coordinator.Connect(pusherA)

		_, err := coordinator.Identify(sessA, "alpha", "")
		require.NoError(t, err)
		_, err = coordinator.Identify(sessA, "beta", "")
		require.NoError(t, err)
		seen := pusherA.countIdentify()

		// When: another session takes over the first identity
		pusherB := &fakePusher{}
		sessB := coordinator.Connect(pusherB)
		_, err = coordinator.Identify(sessB, "alpha", "")
		require.NoError(t, err)

		// Then: the old identity's fan-out no longer reaches the rebound tab
		assert.Equal(t, seen, pusherA.countIdentify())
		assert.Equal(t, 1, pusherB.countIdentify())
	})
}

func TestCoordinator_CreateRoom(t *testing.T) {
	t.Run("Requires an identified session", func(t *testing.T) {
		// Given: a connected but anonymous session
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		sessionID := coordinator.Connect(&fakePusher{})

		// When: it tries to create a room
		roomID := coordinator.CreateRoom(sessionID, "lobby")

		// Then: nothing is created
		assert.Zero(t, roomID)
		assert.Empty(t, coordinator.ListRooms())
	})

	t.Run("Announces the room and joins the owner", func(t *testing.T) {
		// Given: an identified session
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		sessionID, userID, pusher := identifiedSession(t, coordinator, "alpha")

		// When: it creates a room
		roomID := coordinator.CreateRoom(sessionID, "lobby")

		// Then: the room is announced, listed, and the owner is inside
		require.NotZero(t, roomID)
		assert.True(t, pusher.hasAnnounce(roomID))
		assert.Equal(t, []entity.RoomInfo{{ID: roomID, Name: "lobby"}}, coordinator.ListRooms())

		require.Eventually(t, func() bool {
			status, ok := pusher.lastStatus()
			return ok && status.RoomID == roomID && len(status.Users) == 1 && status.Users[0] == userID
		}, waitFor, tick)
	})

	t.Run("Lists rooms in creation order", func(t *testing.T) {
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		sessA, _, _ := identifiedSession(t, coordinator, "alpha")
		sessB, _, _ := identifiedSession(t, coordinator, "beta")

		first := coordinator.CreateRoom(sessA, "first")
		second := coordinator.CreateRoom(sessB, "second")

		rooms := coordinator.ListRooms()
		require.Len(t, rooms, 2)
		assert.Equal(t, first, rooms[0].ID)
		assert.Equal(t, second, rooms[1].ID)
	})
}

func TestCoordinator_JoinRoom(t *testing.T) {
	t.Run("A session occupies at most one room", func(t *testing.T) {
		// Given: two users each in their own room
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		sessA, userA, pusherA := identifiedSession(t, coordinator, "alpha")
		sessB, userB, _ := identifiedSession(t, coordinator, "beta")
		_ = coordinator.CreateRoom(sessA, "first")
		second := coordinator.CreateRoom(sessB, "second")

		// When: the first user joins the second room
		coordinator.JoinRoom(sessA, second)

		// Then: they show up in the second room together with its owner
		require.Eventually(t, func() bool {
			status, ok := pusherA.lastStatus()
			return ok && status.RoomID == second && len(status.Users) == 2
		}, waitFor, tick)

		status, _ := pusherA.lastStatus()
		assert.ElementsMatch(t, []uint64{userA, userB}, status.Users)
	})

	t.Run("Room profile fan-out carries no credential", func(t *testing.T) {
		// Given: an identified owner with a nick and a second user joining
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		pusherA := &fakePusher{}
		sessA := coordinator.Connect(pusherA)
		profileA, err := coordinator.Identify(sessA, "", "ann")
		require.NoError(t, err)
		require.NotEmpty(t, profileA.Token)

		sessB, _, pusherB := identifiedSession(t, coordinator, "beta")
		roomID := coordinator.CreateRoom(sessA, "lobby")

		// When: the second user joins the owner's room
		coordinator.JoinRoom(sessB, roomID)

		// Then: they learn the owner's id and nick but never the token
		require.Eventually(t, func() bool {
			_, ok := pusherB.profileOf(profileA.UserID)
			return ok
		}, waitFor, tick)

		profile, _ := pusherB.profileOf(profileA.UserID)
		assert.Equal(t, entity.PublicProfile{UserID: profileA.UserID, Nick: "ann"}, profile)
	})

	t.Run("Unknown rooms are dropped silently", func(t *testing.T) {
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		sessionID, _, pusher := identifiedSession(t, coordinator, "alpha")

		coordinator.JoinRoom(sessionID, 42)

		// Follow with a synchronous call to drain the command queue.
		assert.Empty(t, coordinator.ListRooms())
		_, ok := pusher.lastStatus()
		assert.False(t, ok)
	})

	t.Run("Disconnect removes the user from the room", func(t *testing.T) {
		// Given: two users in one room
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		sessA, userA, pusherA := identifiedSession(t, coordinator, "alpha")
		sessB, _, _ := identifiedSession(t, coordinator, "beta")
		roomID := coordinator.CreateRoom(sessA, "lobby")
		coordinator.JoinRoom(sessB, roomID)

		require.Eventually(t, func() bool {
			status, ok := pusherA.lastStatus()
			return ok && len(status.Users) == 2
		}, waitFor, tick)

		// When: the second user disconnects
		coordinator.Disconnect(sessB)

		// Then: the room shrinks back to its owner
		require.Eventually(t, func() bool {
			status, ok := pusherA.lastStatus()
			return ok && len(status.Users) == 1 && status.Users[0] == userA
		}, waitFor, tick)
	})
}

func TestCoordinator_GameAction(t *testing.T) {
	t.Run("Rejections reach only the offending session", func(t *testing.T) {
		// Given: two users in one room, neither seated
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		sessA, _, pusherA := identifiedSession(t, coordinator, "alpha")
		sessB, _, pusherB := identifiedSession(t, coordinator, "beta")
		roomID := coordinator.CreateRoom(sessA, "lobby")
		coordinator.JoinRoom(sessB, roomID)

		// When: the first user plays without a seat
		coordinator.GameAction(sessA, roomID, entity.Action{Kind: entity.ActionPlace, X: 4, Y: 4})

		// Then: only that session hears about it
		require.Eventually(t, func() bool {
			return pusherA.countRejects() == 1
		}, waitFor, tick)

		reject, _ := pusherA.lastReject()
		assert.Equal(t, roomID, reject.RoomID)
		assert.Equal(t, apperror.ErrNotYourTurn.Error(), reject.Reason)
		assert.Zero(t, pusherB.countRejects())
	})

	t.Run("Anonymous sessions cannot act", func(t *testing.T) {
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		sessA, userA, pusherA := identifiedSession(t, coordinator, "alpha")
		roomID := coordinator.CreateRoom(sessA, "lobby")

		anonPusher := &fakePusher{}
		anon := coordinator.Connect(anonPusher)
		coordinator.GameAction(anon, roomID, entity.Action{Kind: entity.ActionTakeSeat, Seat: 0})

		// The seat must still be open for the identified user.
		coordinator.GameAction(sessA, roomID, entity.Action{Kind: entity.ActionTakeSeat, Seat: 0})

		require.Eventually(t, func() bool {
			status, ok := pusherA.lastStatus()
			return ok && status.View.Seats[0].UserID == userA
		}, waitFor, tick)
		assert.Zero(t, anonPusher.countRejects())
	})

	t.Run("A full game runs from first stone to agreement", func(t *testing.T) {
		// Given: two seated players in one room
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		sessA, userA, pusherA := identifiedSession(t, coordinator, "alpha")
		sessB, userB, _ := identifiedSession(t, coordinator, "beta")
		roomID := coordinator.CreateRoom(sessA, "lobby")
		coordinator.JoinRoom(sessB, roomID)

		coordinator.GameAction(sessA, roomID, entity.Action{Kind: entity.ActionTakeSeat, Seat: 0})
		coordinator.GameAction(sessB, roomID, entity.Action{Kind: entity.ActionTakeSeat, Seat: 1})

		// When: they trade stones and pass twice
		coordinator.GameAction(sessA, roomID, entity.Action{Kind: entity.ActionPlace, X: 4, Y: 4})
		coordinator.GameAction(sessB, roomID, entity.Action{Kind: entity.ActionPlace, X: 10, Y: 10})
		coordinator.GameAction(sessA, roomID, entity.Action{Kind: entity.ActionPass})
		coordinator.GameAction(sessB, roomID, entity.Action{Kind: entity.ActionPass})

		// Then: the room reaches scoring with both stones in play
		require.Eventually(t, func() bool {
			status, ok := pusherA.lastStatus()
			return ok && status.View.Phase == entity.PhaseScoring
		}, waitFor, tick)

		status, _ := pusherA.lastStatus()
		require.NotNil(t, status.View.Scoring)
		assert.Len(t, status.View.Scoring.Groups, 2)
		assert.Equal(t, userA, status.View.Seats[0].UserID)
		assert.Equal(t, userB, status.View.Seats[1].UserID)

		// When: both players confirm the proposal
		coordinator.GameAction(sessA, roomID, entity.Action{Kind: entity.ActionConfirm})
		coordinator.GameAction(sessB, roomID, entity.Action{Kind: entity.ActionConfirm})

		// Then: the game is done
		require.Eventually(t, func() bool {
			status, ok := pusherA.lastStatus()
			return ok && status.View.Phase == entity.PhaseDone
		}, waitFor, tick)
	})
}

func TestCoordinator_CloseRoom(t *testing.T) {
	t.Run("Closing a room announces it and empties the list", func(t *testing.T) {
		// Given: an open room
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		sessionID, _, pusher := identifiedSession(t, coordinator, "alpha")
		roomID := coordinator.CreateRoom(sessionID, "lobby")

		// When: the room is closed
		coordinator.CloseRoom(roomID)

		// Then: the closure is broadcast and the room is gone
		assert.Empty(t, coordinator.ListRooms())
		require.Eventually(t, func() bool {
			return pusher.countClosed(roomID) == 1
		}, waitFor, tick)
	})

	t.Run("Closing an unknown room is a no-op", func(t *testing.T) {
		coordinator := newTestCoordinator(t, time.Minute, time.Hour)
		_, _, pusher := identifiedSession(t, coordinator, "alpha")

		coordinator.CloseRoom(42)

		assert.Empty(t, coordinator.ListRooms())
		assert.Zero(t, pusher.countClosed(42))
	})
}

func TestCoordinator_Shutdown(t *testing.T) {
	t.Run("Callers unblock once the run loop stops", func(t *testing.T) {
		// Given: a running coordinator with one session
		logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
		coordinator := NewCoordinator(logger, newFakeProfiles(), time.Minute, time.Hour)
		ctx, cancel := context.WithCancel(context.Background())
		go coordinator.Run(ctx)

		sessionID := coordinator.Connect(&fakePusher{})
		require.NotZero(t, sessionID)

		// When: the run loop is stopped
		cancel()

		// Then: late calls return immediately instead of queueing forever
		require.Eventually(t, func() bool {
			return coordinator.Connect(&fakePusher{}) == 0
		}, waitFor, tick)

		_, err := coordinator.Identify(sessionID, "alpha", "")
		require.ErrorIs(t, err, apperror.ErrShuttingDown)
		assert.Nil(t, coordinator.ListRooms())
		assert.Zero(t, coordinator.CreateRoom(sessionID, "lobby"))
	})
}

func TestCoordinator_IdleSweep(t *testing.T) {
	t.Run("Idle rooms are closed exactly once", func(t *testing.T) {
		// Given: a coordinator with an aggressive reaper and one idle room
		coordinator := newTestCoordinator(t, 20*time.Millisecond, 50*time.Millisecond)
		sessionID, _, pusher := identifiedSession(t, coordinator, "alpha")
		roomID := coordinator.CreateRoom(sessionID, "lobby")

		// When: the idle timeout elapses
		require.Eventually(t, func() bool {
			return pusher.countClosed(roomID) > 0
		}, waitFor, tick)

		// Then: the room is gone and was announced closed exactly once
		assert.Empty(t, coordinator.ListRooms())

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, 1, pusher.countClosed(roomID))
	})

	t.Run("Activity keeps a room alive", func(t *testing.T) {
		// Given: a room where the owner keeps playing
		coordinator := newTestCoordinator(t, 20*time.Millisecond, 150*time.Millisecond)
		sessionID, _, pusher := identifiedSession(t, coordinator, "alpha")
		roomID := coordinator.CreateRoom(sessionID, "lobby")

		// When: actions arrive faster than the idle timeout
		deadline := time.Now().Add(400 * time.Millisecond)
		seated := false
		for time.Now().Before(deadline) {
			kind := entity.ActionTakeSeat
			if seated {
				kind = entity.ActionLeaveSeat
			}
			coordinator.GameAction(sessionID, roomID, entity.Action{Kind: kind, Seat: 0})
			seated = !seated
			time.Sleep(50 * time.Millisecond)
		}

		// Then: the room was never reaped
		assert.Zero(t, pusher.countClosed(roomID))
		assert.Len(t, coordinator.ListRooms(), 1)
	})
}
