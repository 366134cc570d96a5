package entity

// Profile is a durable user identity. The token is the sole credential: a
// client presenting a previously issued token recovers the same user id and
// nickname across reconnects. The full profile is only ever sent to the
// user's own sessions.
type Profile struct {
	UserID uint64 `json:"user_id"`
	Token  string `json:"token"`
	Nick   string `json:"nick,omitempty"`
}

// PublicProfile is the credential-free slice of a profile, safe to broadcast
// to other room members.
type PublicProfile struct {
	UserID uint64 `json:"user_id"`
	Nick   string `json:"nick,omitempty"`
}

func (that *Profile) Public() PublicProfile {
	return PublicProfile{
		UserID: that.UserID,
		Nick:   that.Nick,
	}
}
