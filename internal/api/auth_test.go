package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		secret    string
		challenge string
		expect    string
	}{
		{"known", "secretkey", "abc123",
			"f6e1a359e16ddc5f8d24f42d9a059643a28b26478659184a8f915e74050b90ce"},
		{"long-secret", "correct horse battery staple", "challenge-0001",
			"2fc4f5e39d3df2e9c69e9742b8a448db9d81a3a9a11e7ab565d8adb595035b30"},
		{"empty-challenge", "secretkey", "",
			"0ec2fbe02ea7c3eb6dd73c12eb2cffc9061280dfc8365cdcfa5241c6e3d9c9a7"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			sig, err := Sign([]byte(c.secret), c.challenge)
			require.NoError(t, err)
			assert.Equal(t, c.expect, sig)
			// deterministic
			sig2, err := Sign([]byte(c.secret), c.challenge)
			require.NoError(t, err)
			assert.Equal(t, sig, sig2)
		})
	}
}

func TestSignWeakSecret(t *testing.T) {
	t.Parallel()

	_, err := Sign([]byte("short"), "abc123")
	assert.Error(t, err)
}

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("secretkey")
	const challenge = "abc123"
	sig, err := Sign(secret, challenge)
	require.NoError(t, err)
	assert.True(t, Verify(secret, challenge, sig))
	assert.False(t, Verify(secret, challenge, sig[:len(sig)-1]+"0"))
	assert.False(t, Verify(secret, "other-challenge", sig))
	assert.False(t, Verify([]byte("otherkey1"), challenge, sig))
}
