package api

// Wire bodies of the control server device API. Field case follows the
// server: auth requests use capital Serial, responses are camelCase.

type challengeRequest struct {
	Serial string `json:"Serial"`
}

type challengeReply struct {
	Challenge string `json:"challenge"`
}

type respondRequest struct {
	Serial            string `json:"Serial"`
	ChallengeResponse string `json:"challengeResponse"`
}

type respondReply struct {
	Token string `json:"token"`
}

type connectReply struct {
	ChannelID string `json:"channelId"`
}

type pollRequest struct {
	ChannelID string `json:"channelId"`
}

type pollReply struct {
	// nil or empty = no pending command
	Message *string `json:"message"`
}
