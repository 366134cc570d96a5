package usecase

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/stanley-fork/variant-go-server/internal/apperror"
	"github.com/stanley-fork/variant-go-server/internal/entity"
)

type profileService interface {
	Identify(ctx context.Context, token, nick string) (*entity.Profile, error)
	GetByUserID(ctx context.Context, userID uint64) (*entity.Profile, error)
}

// session ties a transport connection to an optional user identity. It holds
// only room ids, never room handles; the rooms own their membership.
type session struct {
	id     uint64
	userID uint64
	client Pusher
	rooms  map[uint32]struct{}
}

// Coordinator is a thin router: it owns the session directory and the room
// directory and processes registry commands one at a time on a single
// goroutine, while every room applies its game actions on its own actor.
// That keeps the single-writer-per-room guarantee without funneling
// independent rooms through one bottleneck.
type Coordinator struct {
	logger   *slog.Logger
	profiles profileService

	sweepInterval time.Duration
	idleTimeout   time.Duration

	commands chan func(ctx context.Context)
	done     chan struct{}

	sessions       map[uint64]*session
	sessionsByUser map[uint64][]uint64
	rooms          map[uint32]*room

	sessionCounter uint64
	roomCounter    uint32
}

func NewCoordinator(logger *slog.Logger, profiles profileService, sweepInterval, idleTimeout time.Duration) *Coordinator {
	return &Coordinator{
		logger:   logger.With("component", "coordinator"),
		profiles: profiles,

		sweepInterval: sweepInterval,
		idleTimeout:   idleTimeout,

		commands: make(chan func(ctx context.Context)),
		done:     make(chan struct{}),

		sessions:       make(map[uint64]*session),
		sessionsByUser: make(map[uint64][]uint64),
		rooms:          make(map[uint32]*room),
	}
}

// Run processes commands and the idle sweep until ctx is canceled. All state
// mutation happens here. Once Run returns, every public method unblocks and
// reports shutdown instead of queueing forever.
func (that *Coordinator) Run(ctx context.Context) {
	defer close(that.done)

	ticker := time.NewTicker(that.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-that.commands:
			cmd(ctx)
		case <-ticker.C:
			that.sweepIdleRooms(time.Now())
		}
	}
}

// submit queues cmd for the run loop. It reports false, without blocking,
// when the coordinator has already shut down.
func (that *Coordinator) submit(cmd func(ctx context.Context)) bool {
	select {
	case that.commands <- cmd:
		return true
	case <-that.done:
		return false
	}
}

// Connect registers a new anonymous session and returns its id, or 0 when
// the coordinator has shut down.
func (that *Coordinator) Connect(client Pusher) uint64 {
	reply := make(chan uint64, 1)

	queued := that.submit(func(_ context.Context) {
		that.sessionCounter++
		id := that.sessionCounter

		that.sessions[id] = &session{
			id:     id,
			client: client,
			rooms:  make(map[uint32]struct{}),
		}

		that.logger.Info("session connected", "sessionID", id)
		reply <- id
	})
	if !queued {
		return 0
	}

	return <-reply
}

// Disconnect removes the session from every room it occupies and discards
// it. Safe to call with an unknown id.
func (that *Coordinator) Disconnect(sessionID uint64) {
	that.submit(func(_ context.Context) {
		sess, ok := that.sessions[sessionID]
		if !ok {
			return
		}

		that.leaveAllRooms(sess)
		that.unbindUser(sess)

		delete(that.sessions, sessionID)
		that.logger.Info("session disconnected", "sessionID", sessionID)
	})
}

// Identify resolves the durable token into a user identity, binds it to the
// session and fans the profile out to every session of that user and every
// room the user occupies.
func (that *Coordinator) Identify(sessionID uint64, token, nick string) (*entity.Profile, error) {
	type result struct {
		profile *entity.Profile
		err     error
	}
	reply := make(chan result, 1)

	queued := that.submit(func(ctx context.Context) {
		sess, ok := that.sessions[sessionID]
		if !ok {
			reply <- result{err: apperror.ErrUnidentified}
			return
		}

		profile, err := that.profiles.Identify(ctx, token, nick)
		if err != nil {
			that.logger.Error("identify failed", "sessionID", sessionID, "error", err)
			reply <- result{err: err}
			return
		}

		// A rebind detaches the session from its previous identity so the
		// old user's fan-out no longer reaches this tab.
		if sess.userID != 0 && sess.userID != profile.UserID {
			that.unbindUser(sess)
		}

		sess.userID = profile.UserID

		bound := false
		for _, id := range that.sessionsByUser[profile.UserID] {
			if id == sessionID {
				bound = true
				break
			}
		}
		if !bound {
			that.sessionsByUser[profile.UserID] = append(that.sessionsByUser[profile.UserID], sessionID)
		}

		// All of the user's open tabs converge on one identity.
		for _, id := range that.sessionsByUser[profile.UserID] {
			if other, ok := that.sessions[id]; ok {
				other.client.Push(entity.IdentifyEvent{Profile: *profile})
			}
		}

		for _, r := range that.userRooms(profile.UserID) {
			r.inbox <- profileMsg{profile: *profile}
		}

		reply <- result{profile: profile}
	})
	if !queued {
		return nil, apperror.ErrShuttingDown
	}

	res := <-reply

	return res.profile, res.err
}

// CreateRoom allocates a fresh room with its own actor, joins the owner and
// announces the room globally. Returns 0 when the session is not identified.
func (that *Coordinator) CreateRoom(sessionID uint64, name string) uint32 {
	reply := make(chan uint32, 1)

	queued := that.submit(func(ctx context.Context) {
		sess, ok := that.sessions[sessionID]
		if !ok || sess.userID == 0 {
			that.logger.Debug("dropping create room", "sessionID", sessionID, "error", apperror.ErrUnidentified)
			reply <- 0
			return
		}

		that.leaveAllRooms(sess)

		// Sequential ids keep the room list in stable historical order.
		that.roomCounter++
		id := that.roomCounter

		r := newRoom(id, name, that.logger, that.profiles)
		that.rooms[id] = r
		go r.run(ctx)

		that.broadcastGlobal(entity.RoomAnnouncedEvent{RoomID: id, Name: name})

		r.inbox <- joinMsg{sessionID: sess.id, userID: sess.userID, client: sess.client}
		sess.rooms[id] = struct{}{}

		that.logger.Info("room created", "roomID", id, "name", name)
		reply <- id
	})
	if !queued {
		return 0
	}

	return <-reply
}

// JoinRoom moves the session into the room, leaving any other room first.
// Unidentified sessions and unknown rooms are dropped without side effects.
func (that *Coordinator) JoinRoom(sessionID uint64, roomID uint32) {
	that.submit(func(_ context.Context) {
		sess, ok := that.sessions[sessionID]
		if !ok || sess.userID == 0 {
			that.logger.Debug("dropping join", "sessionID", sessionID, "error", apperror.ErrUnidentified)
			return
		}

		r, ok := that.rooms[roomID]
		if !ok {
			that.logger.Debug("dropping join", "roomID", roomID, "error", apperror.ErrRoomNotFound)
			return
		}

		that.leaveAllRooms(sess)

		r.inbox <- joinMsg{sessionID: sess.id, userID: sess.userID, client: sess.client}
		sess.rooms[roomID] = struct{}{}
	})
}

// ListRooms returns a snapshot of open rooms ordered by id.
func (that *Coordinator) ListRooms() []entity.RoomInfo {
	reply := make(chan []entity.RoomInfo, 1)

	queued := that.submit(func(_ context.Context) {
		rooms := make([]entity.RoomInfo, 0, len(that.rooms))
		for _, r := range that.rooms {
			rooms = append(rooms, entity.RoomInfo{ID: r.id, Name: r.name})
		}

		sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

		reply <- rooms
	})
	if !queued {
		return nil
	}

	return <-reply
}

// GameAction routes a game action to the room's actor. Unidentified sessions
// and unknown rooms are dropped without touching any state.
func (that *Coordinator) GameAction(sessionID uint64, roomID uint32, action entity.Action) {
	that.submit(func(_ context.Context) {
		sess, ok := that.sessions[sessionID]
		if !ok || sess.userID == 0 {
			that.logger.Debug("dropping game action", "sessionID", sessionID, "error", apperror.ErrUnidentified)
			return
		}

		r, ok := that.rooms[roomID]
		if !ok {
			that.logger.Debug("dropping game action", "roomID", roomID, "error", apperror.ErrRoomNotFound)
			return
		}

		r.inbox <- actionMsg{
			sessionID: sess.id,
			userID:    sess.userID,
			client:    sess.client,
			action:    action,
		}
	})
}

// CloseRoom removes the room and announces the closure globally.
func (that *Coordinator) CloseRoom(roomID uint32) {
	that.submit(func(_ context.Context) {
		if _, ok := that.rooms[roomID]; !ok {
			return
		}

		that.closeRoom(roomID)
	})
}

func (that *Coordinator) closeRoom(roomID uint32) {
	r := that.rooms[roomID]

	delete(that.rooms, roomID)
	close(r.inbox)

	for _, sess := range that.sessions {
		delete(sess.rooms, roomID)
	}

	that.broadcastGlobal(entity.RoomClosedEvent{RoomID: roomID})
}

func (that *Coordinator) sweepIdleRooms(now time.Time) {
	for id, r := range that.rooms {
		if r.idleSince(now) <= that.idleTimeout {
			continue
		}

		that.closeRoom(id)
		that.logger.Info("killed idle room", "roomID", id)
	}
}

// unbindUser drops the session from its current user's fan-out list.
func (that *Coordinator) unbindUser(sess *session) {
	if sess.userID == 0 {
		return
	}

	remaining := that.sessionsByUser[sess.userID][:0]
	for _, id := range that.sessionsByUser[sess.userID] {
		if id != sess.id {
			remaining = append(remaining, id)
		}
	}
	that.sessionsByUser[sess.userID] = remaining
}

func (that *Coordinator) leaveAllRooms(sess *session) {
	for roomID := range sess.rooms {
		if r, ok := that.rooms[roomID]; ok {
			r.inbox <- leaveMsg{sessionID: sess.id}
		}
		delete(sess.rooms, roomID)
	}
}

func (that *Coordinator) userRooms(userID uint64) []*room {
	seen := make(map[uint32]struct{})
	var rooms []*room

	for _, sessionID := range that.sessionsByUser[userID] {
		sess, ok := that.sessions[sessionID]
		if !ok {
			continue
		}

		for roomID := range sess.rooms {
			if _, dup := seen[roomID]; dup {
				continue
			}
			seen[roomID] = struct{}{}

			if r, ok := that.rooms[roomID]; ok {
				rooms = append(rooms, r)
			}
		}
	}

	return rooms
}

func (that *Coordinator) broadcastGlobal(event entity.Event) {
	for _, sess := range that.sessions {
		sess.client.Push(event)
	}
}
