package api_test

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadeworks/shaded/helpers"
	"github.com/shadeworks/shaded/internal/api"
	"github.com/shadeworks/shaded/log2"
)

const testSecret = "secretkey"

func testClient(t testing.TB, rt http.RoundTripper, tweak func(*api.Options)) *api.Client {
	opt := api.Options{
		BaseURL:   "http://shade-server.test",
		Serial:    "sunshade-01",
		Secret:    []byte(testSecret),
		Transport: rt,
		Log:       log2.NewTest(t, log2.LDebug),
	}
	if tweak != nil {
		tweak(&opt)
	}
	c, err := api.NewClient(opt)
	require.NoError(t, err)
	return c
}

func respondJSON(req *http.Request, status string, body interface{}) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return helpers.NewMockResponse(req, []byte("HTTP/1.0 "+status+"\r\n\r\n"), b)
}

func decodeBody(t testing.TB, req *http.Request, out interface{}) {
	b, err := ioutil.ReadAll(req.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, out))
}

// authServer scripts the happy-path handshake the way the control server
// implements it: random-enough challenge, HMAC check, bearer channel bind.
func authServer(t testing.TB, token, channel string, authCalls *int32) func(*http.Request) (*http.Response, error) {
	const challenge = "abc123"
	return func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/api/deviceauth/challenge":
			var body struct{ Serial string }
			decodeBody(t, req, &body)
			require.Equal(t, "sunshade-01", body.Serial)
			return respondJSON(req, "200 OK", map[string]string{"challenge": challenge})

		case "/api/deviceauth/respond":
			var body struct {
				Serial            string
				ChallengeResponse string `json:"challengeResponse"`
			}
			decodeBody(t, req, &body)
			require.Equal(t, "sunshade-01", body.Serial)
			require.True(t, api.Verify([]byte(testSecret), challenge, body.ChallengeResponse))
			if authCalls != nil {
				atomic.AddInt32(authCalls, 1)
			}
			return respondJSON(req, "200 OK", map[string]string{"token": token})

		case "/api/channel/listener/connect":
			require.Equal(t, token, req.Header.Get("Authorization"))
			return respondJSON(req, "200 OK", map[string]string{"channelId": channel})
		}
		t.Fatalf("unexpected path=%s", req.URL.Path)
		return nil, nil
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		tweak func(*api.Options)
	}{
		{"no-serial", func(o *api.Options) { o.Serial = "" }},
		{"weak-secret", func(o *api.Options) { o.Secret = []byte("short") }},
		{"no-base-url", func(o *api.Options) { o.BaseURL = "" }},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			opt := api.Options{
				BaseURL: "http://shade-server.test",
				Serial:  "sunshade-01",
				Secret:  []byte(testSecret),
				Log:     log2.NewTest(t, log2.LDebug),
			}
			c.tweak(&opt)
			client, err := api.NewClient(opt)
			require.Error(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestHandshake(t *testing.T) {
	t.Parallel()

	c := testClient(t, &helpers.MockHTTP{Fun: authServer(t, "T1", "CH1", nil)}, nil)
	token, err := c.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T1", token)

	channel, err := c.Connect(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "CH1", channel)
}

func TestChallengeRejected(t *testing.T) {
	t.Parallel()

	c := testClient(t, &helpers.MockHTTP{
		Header: []byte("HTTP/1.0 500 Internal Server Error\r\n\r\n"),
		Body:   []byte("boom"),
	}, nil)
	_, err := c.Authenticate(context.Background())
	require.Error(t, err)
	assert.Equal(t, api.KindRejected, api.KindOf(err))
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "boom")
}

// 401 on an unauthenticated request is a plain rejection, not a token
// problem: there is no token to refresh yet.
func TestChallenge401IsRejected(t *testing.T) {
	t.Parallel()

	c := testClient(t, &helpers.MockHTTP{
		Header: []byte("HTTP/1.0 401 Unauthorized\r\n\r\n"),
	}, nil)
	_, err := c.Challenge(context.Background())
	require.Error(t, err)
	assert.Equal(t, api.KindRejected, api.KindOf(err))
}

func TestRespondMalformed(t *testing.T) {
	t.Parallel()

	c := testClient(t, &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/api/deviceauth/challenge":
			return respondJSON(req, "200 OK", map[string]string{"challenge": "abc123"})
		case "/api/deviceauth/respond":
			return respondJSON(req, "200 OK", map[string]string{}) // no token field
		}
		t.Fatalf("unexpected path=%s", req.URL.Path)
		return nil, nil
	}}, nil)
	_, err := c.Authenticate(context.Background())
	require.Error(t, err)
	assert.Equal(t, api.KindMalformed, api.KindOf(err))
}

func TestNetworkFailure(t *testing.T) {
	t.Parallel()

	c := testClient(t, &helpers.MockHTTP{Err: assert.AnError}, nil)
	_, err := c.Authenticate(context.Background())
	require.Error(t, err)
	assert.Equal(t, api.KindNetwork, api.KindOf(err))
}

func TestConnectTokenInvalid(t *testing.T) {
	t.Parallel()

	c := testClient(t, &helpers.MockHTTP{
		Header: []byte("HTTP/1.0 401 Unauthorized\r\n\r\n"),
	}, nil)
	_, err := c.Connect(context.Background(), "stale-token")
	require.Error(t, err)
	assert.Equal(t, api.KindTokenInvalid, api.KindOf(err))
}

func TestPollMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		body     interface{}
		expect   string
		expectOk bool
	}{
		{"open", map[string]string{"message": "open"}, "open", true},
		{"close", map[string]string{"message": "close"}, "close", true},
		{"absent", map[string]string{}, "", false},
		{"empty", map[string]string{"message": ""}, "", false},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			cli := testClient(t, &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
				require.Equal(t, "/api/channel/listener/poll", req.URL.Path)
				require.Equal(t, "T1", req.Header.Get("Authorization"))
				var body struct {
					ChannelID string `json:"channelId"`
				}
				decodeBody(t, req, &body)
				require.Equal(t, "CH1", body.ChannelID)
				return respondJSON(req, "200 OK", c.body)
			}}, nil)
			msg, ok, err := cli.Poll(context.Background(), "T1", "CH1")
			require.NoError(t, err)
			assert.Equal(t, c.expectOk, ok)
			assert.Equal(t, c.expect, msg)
		})
	}
}

// Server holding the long-poll past the wait timeout is the normal idle
// outcome, not an error, whatever the timeout value.
func TestPollTimeout(t *testing.T) {
	t.Parallel()

	hang := func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}
	for _, timeout := range []time.Duration{5 * time.Millisecond, 50 * time.Millisecond} {
		timeout := timeout
		cli := testClient(t, &helpers.MockHTTP{Fun: hang}, func(opt *api.Options) {
			opt.PollTimeout = timeout
		})
		begin := time.Now()
		msg, ok, err := cli.Poll(context.Background(), "T1", "CH1")
		require.NoError(t, err, "timeout=%s", timeout)
		assert.False(t, ok)
		assert.Equal(t, "", msg)
		assert.True(t, time.Since(begin) >= timeout)
	}
}

// Outer cancellation during a poll is shutdown, not a timeout and not an
// api failure.
func TestPollCanceled(t *testing.T) {
	t.Parallel()

	cli := testClient(t, &helpers.MockHTTP{Fun: func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}}, func(opt *api.Options) {
		opt.PollTimeout = time.Hour
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, _, err := cli.Poll(ctx, "T1", "CH1")
	assert.Equal(t, context.Canceled, err)
}

func TestPollFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		header string
		expect api.Kind
	}{
		{"unauthorized", "HTTP/1.0 401 Unauthorized\r\n\r\n", api.KindTokenInvalid},
		{"forbidden", "HTTP/1.0 403 Forbidden\r\n\r\n", api.KindTokenInvalid},
		{"server-error", "HTTP/1.0 500 Internal Server Error\r\n\r\n", api.KindRejected},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			cli := testClient(t, &helpers.MockHTTP{Header: []byte(c.header)}, nil)
			_, _, err := cli.Poll(context.Background(), "T1", "CH1")
			require.Error(t, err)
			assert.Equal(t, c.expect, api.KindOf(err))
		})
	}
}
