package usecase

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/stanley-fork/variant-go-server/internal/entity"
)

// Pusher delivers an event to one connected session. Implementations must
// never block; a slow or dead peer drops events on its own channel.
type Pusher interface {
	Push(event entity.Event)
}

type profileGetter interface {
	GetByUserID(ctx context.Context, userID uint64) (*entity.Profile, error)
}

// room is an actor owning one game engine, its membership and its idle
// stamp. All mutations arrive through the inbox and are applied by a single
// goroutine, so per-room effects happen in strict arrival order.
type room struct {
	id       uint32
	name     string
	logger   *slog.Logger
	profiles profileGetter

	game    *entity.Game
	members map[uint64]*roomMember

	inbox      chan roomMsg
	lastActive atomic.Int64
}

type roomMember struct {
	userID uint64
	client Pusher
}

type roomMsg interface{}

type joinMsg struct {
	sessionID uint64
	userID    uint64
	client    Pusher
}

type leaveMsg struct {
	sessionID uint64
}

type actionMsg struct {
	sessionID uint64
	userID    uint64
	client    Pusher
	action    entity.Action
}

type profileMsg struct {
	profile entity.Profile
}

const roomInboxSize = 64

func newRoom(id uint32, name string, logger *slog.Logger, profiles profileGetter) *room {
	that := &room{
		id:       id,
		name:     name,
		logger:   logger.With("component", "room", "roomID", id),
		profiles: profiles,
		game:     entity.NewGame(),
		members:  make(map[uint64]*roomMember),
		inbox:    make(chan roomMsg, roomInboxSize),
	}
	that.lastActive.Store(time.Now().UnixNano())

	return that
}

func (that *room) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-that.inbox:
			if !ok {
				return
			}
			that.handle(ctx, msg)
		}
	}
}

func (that *room) handle(ctx context.Context, msg roomMsg) {
	switch msg := msg.(type) {
	case joinMsg:
		that.handleJoin(ctx, msg)
	case leaveMsg:
		that.handleLeave(msg)
	case actionMsg:
		that.handleAction(msg)
	case profileMsg:
		that.broadcast(entity.ProfileUpdatedEvent{Profile: msg.profile.Public()})
	}
}

func (that *room) handleJoin(ctx context.Context, msg joinMsg) {
	that.members[msg.sessionID] = &roomMember{
		userID: msg.userID,
		client: msg.client,
	}

	that.broadcastStatus()

	// Let the joiner know who is here, and the room who joined.
	for _, userID := range that.users() {
		profile, err := that.profiles.GetByUserID(ctx, userID)
		if err != nil {
			that.logger.Warn("failed to load member profile", "userID", userID, "error", err)
			continue
		}
		msg.client.Push(entity.ProfileUpdatedEvent{Profile: profile.Public()})
	}

	profile, err := that.profiles.GetByUserID(ctx, msg.userID)
	if err != nil {
		that.logger.Warn("failed to load joiner profile", "userID", msg.userID, "error", err)
		return
	}
	that.broadcast(entity.ProfileUpdatedEvent{Profile: profile.Public()})
}

func (that *room) handleLeave(msg leaveMsg) {
	member, ok := that.members[msg.sessionID]
	if !ok {
		return
	}

	delete(that.members, msg.sessionID)

	// Only the departure of the user's last session changes the room's
	// distinct-user set.
	for _, other := range that.members {
		if other.userID == member.userID {
			return
		}
	}

	that.broadcastStatus()
}

func (that *room) handleAction(msg actionMsg) {
	var err error

	switch msg.action.Kind {
	case entity.ActionTakeSeat:
		err = that.game.TakeSeat(msg.userID, msg.action.Seat)
	case entity.ActionLeaveSeat:
		err = that.game.LeaveSeat(msg.userID, msg.action.Seat)
	default:
		err = that.game.Apply(msg.userID, msg.action)
	}

	if err != nil {
		msg.client.Push(entity.ActionRejectedEvent{
			RoomID: that.id,
			Reason: err.Error(),
		})
		return
	}

	that.lastActive.Store(time.Now().UnixNano())
	that.broadcastStatus()
}

func (that *room) broadcastStatus() {
	that.broadcast(entity.RoomStatusEvent{
		RoomID: that.id,
		Users:  that.users(),
		View:   that.game.View(),
	})
}

func (that *room) broadcast(event entity.Event) {
	for _, member := range that.members {
		member.client.Push(event)
	}
}

func (that *room) users() []uint64 {
	seen := make(map[uint64]struct{}, len(that.members))
	users := make([]uint64, 0, len(that.members))

	for _, member := range that.members {
		if _, ok := seen[member.userID]; ok {
			continue
		}
		seen[member.userID] = struct{}{}
		users = append(users, member.userID)
	}

	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	return users
}

func (that *room) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, that.lastActive.Load()))
}
