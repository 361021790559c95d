package agent

// Session is the authenticated pairing of bearer token and notification
// channel. Never partially valid: re-authentication replaces the whole
// value, a poll in flight must not observe a half-updated pair.
type Session struct {
	Token     string
	ChannelID string
}

func (s Session) Valid() bool { return s.Token != "" && s.ChannelID != "" }
