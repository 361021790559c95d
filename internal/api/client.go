// Package api is the HTTP client side of the shade control server
// protocol: challenge/response device auth, channel binding, long-poll.
// No retry policy here; callers decide what a failure means.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/juju/errors"

	"github.com/shadeworks/shaded/log2"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	DefaultPollTimeout    = 5 * time.Second
)

var errPollTimeout = fmt.Errorf("poll timeout")

type Options struct {
	BaseURL        string
	Serial         string
	Secret         []byte
	NetworkTimeout time.Duration
	PollTimeout    time.Duration
	Transport      http.RoundTripper // tests override with helpers.MockHTTP
	Log            *log2.Log
}

type Client struct {
	opt  Options
	http *http.Client
}

func NewClient(opt Options) (*Client, error) {
	if opt.Serial == "" {
		return nil, errors.NotValidf("code error client Serial=empty")
	}
	if len(opt.Secret) < 8 {
		return nil, errors.NotValidf("client secret must be >= 8 bytes")
	}
	if opt.BaseURL == "" {
		return nil, errors.NotValidf("config error server BaseURL=empty")
	}
	if _, err := url.Parse(opt.BaseURL); err != nil {
		return nil, errors.Annotatef(err, "config error server BaseURL=%s", opt.BaseURL)
	}
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.PollTimeout == 0 {
		opt.PollTimeout = DefaultPollTimeout
	}
	return &Client{
		opt:  opt,
		http: &http.Client{Transport: opt.Transport},
	}, nil
}

// Challenge asks the server for a fresh auth challenge for this device.
func (c *Client) Challenge(ctx context.Context) (string, error) {
	var reply challengeReply
	err := c.do(ctx, request{
		op:       "challenge",
		endpoint: "deviceauth/challenge",
		body:     challengeRequest{Serial: c.opt.Serial},
		timeout:  c.opt.NetworkTimeout,
	}, &reply)
	if err != nil {
		return "", err
	}
	if reply.Challenge == "" {
		return "", &Error{Kind: KindMalformed, Op: "challenge", Cause: fmt.Errorf("no challenge field")}
	}
	return reply.Challenge, nil
}

// Respond signs challenge and submits it, returning the session token.
func (c *Client) Respond(ctx context.Context, challenge string) (string, error) {
	signature, err := Sign(c.opt.Secret, challenge)
	if err != nil {
		return "", errors.Annotate(err, "sign challenge")
	}
	var reply respondReply
	err = c.do(ctx, request{
		op:       "respond",
		endpoint: "deviceauth/respond",
		body:     respondRequest{Serial: c.opt.Serial, ChallengeResponse: signature},
		timeout:  c.opt.NetworkTimeout,
	}, &reply)
	if err != nil {
		return "", err
	}
	if reply.Token == "" {
		return "", &Error{Kind: KindMalformed, Op: "respond", Cause: fmt.Errorf("no token field")}
	}
	return reply.Token, nil
}

// Authenticate runs the full challenge/response handshake.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	challenge, err := c.Challenge(ctx)
	if err != nil {
		return "", err
	}
	return c.Respond(ctx, challenge)
}

// Connect exchanges a session token for a notification channel id.
func (c *Client) Connect(ctx context.Context, token string) (string, error) {
	var reply connectReply
	err := c.do(ctx, request{
		op:       "connect",
		endpoint: "channel/listener/connect",
		token:    token,
		timeout:  c.opt.NetworkTimeout,
	}, &reply)
	if err != nil {
		return "", err
	}
	if reply.ChannelID == "" {
		return "", &Error{Kind: KindMalformed, Op: "connect", Cause: fmt.Errorf("no channelId field")}
	}
	return reply.ChannelID, nil
}

// Poll issues one blocking poll bounded by PollTimeout. Timeout is the
// expected idle outcome and returns ok=false with nil error, same as a
// success response without a pending message.
func (c *Client) Poll(ctx context.Context, token, channelID string) (string, bool, error) {
	var reply pollReply
	err := c.do(ctx, request{
		op:           "poll",
		endpoint:     "channel/listener/poll",
		token:        token,
		body:         pollRequest{ChannelID: channelID},
		timeout:      c.opt.PollTimeout,
		allowTimeout: true,
	}, &reply)
	if err == errPollTimeout {
		c.opt.Log.Debugf("api: poll timeout (expected)")
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if reply.Message == nil || *reply.Message == "" {
		return "", false, nil
	}
	return *reply.Message, true, nil
}

type request struct {
	op       string
	endpoint string
	token    string // non-empty adds Authorization header and enables 401/403 -> KindTokenInvalid
	body     interface{}
	timeout  time.Duration
	// allowTimeout makes the request deadline an expected outcome
	// (errPollTimeout) instead of a network failure.
	allowTimeout bool
}

func (c *Client) do(ctx context.Context, r request, reply interface{}) error {
	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return errors.Annotatef(err, "code error api %s marshal", r.op)
		}
	}

	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	u := c.opt.BaseURL + "/api/" + r.endpoint
	req, err := http.NewRequestWithContext(rctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return errors.Annotatef(err, "code error api %s url=%s", r.op, u)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", r.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// distinguish outer cancel (shutdown), expected poll deadline,
		// and real transport trouble
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.allowTimeout && rctx.Err() == context.DeadlineExceeded {
			return errPollTimeout
		}
		return &Error{Kind: KindNetwork, Op: r.op, Cause: err}
	}
	defer resp.Body.Close()
	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.allowTimeout && rctx.Err() == context.DeadlineExceeded {
			return errPollTimeout
		}
		return &Error{Kind: KindNetwork, Op: r.op, Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		kind := KindRejected
		if r.token != "" && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			kind = KindTokenInvalid
		}
		return &Error{Kind: kind, Op: r.op, Status: resp.StatusCode, Body: string(b)}
	}
	if err = json.Unmarshal(b, reply); err != nil {
		return &Error{Kind: KindMalformed, Op: r.op, Body: string(b), Cause: err}
	}
	return nil
}
