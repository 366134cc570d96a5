package entity

// Event is a server-to-client notification. EventName doubles as the wire
// action tag.
type Event interface {
	EventName() string
}

type GameView struct {
	Seats   [2]Seat      `json:"seats"`
	Turn    Color        `json:"turn"`
	Board   []Color      `json:"board"`
	Phase   Phase        `json:"phase"`
	Scoring *ScoringView `json:"scoring,omitempty"`
}

type ScoringView struct {
	Groups    []Group `json:"groups"`
	Territory []Color `json:"territory"`
}

type RoomInfo struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

type RoomAnnouncedEvent struct {
	RoomID uint32 `json:"id"`
	Name   string `json:"name"`
}

func (RoomAnnouncedEvent) EventName() string { return "room:announce" }

type RoomClosedEvent struct {
	RoomID uint32 `json:"id"`
}

func (RoomClosedEvent) EventName() string { return "room:close" }

type RoomStatusEvent struct {
	RoomID uint32    `json:"room_id"`
	Users  []uint64  `json:"users"`
	View   *GameView `json:"view"`
}

func (RoomStatusEvent) EventName() string { return "room:status" }

type RoomListEvent struct {
	Rooms []RoomInfo `json:"rooms"`
}

func (RoomListEvent) EventName() string { return "room:list" }

type IdentifyEvent struct {
	Profile Profile `json:"profile"`
}

func (IdentifyEvent) EventName() string { return "identify" }

// ProfileUpdatedEvent fans a member's public profile out to a room. It never
// carries the token; that stays between the user and their own sessions.
type ProfileUpdatedEvent struct {
	Profile PublicProfile `json:"profile"`
}

func (ProfileUpdatedEvent) EventName() string { return "profile:update" }

// ActionRejectedEvent is sent only to the session whose game action failed;
// the rest of the room never learns about it.
type ActionRejectedEvent struct {
	RoomID uint32 `json:"room_id"`
	Reason string `json:"reason"`
}

func (ActionRejectedEvent) EventName() string { return "game:reject" }
