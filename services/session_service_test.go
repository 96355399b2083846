package services

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomTokenSkipsBiasedBytes(t *testing.T) {
	assert.Equal(t, 248, maxUnbiasedByte)

	// 248..255 отбрасываются, остальные байты отображаются по модулю алфавита
	source := bytes.NewReader([]byte{255, 0, 248, 61, 62, 247, 250, 1})
	token, err := randomToken(source, 4)
	require.NoError(t, err)
	assert.Equal(t, "a9a9", token)
}

func TestRandomTokenReadsMoreWhenBytesAreDiscarded(t *testing.T) {
	source := bytes.NewReader([]byte{252, 253, 1, 2})
	token, err := randomToken(source, 2)
	require.NoError(t, err)
	assert.Equal(t, "bc", token)

	_, err = randomToken(bytes.NewReader([]byte{255, 255}), 2)
	assert.Error(t, err)
}

func TestGenerateRandomToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := generateRandomToken(sessionIDLength)
		require.NoError(t, err)
		require.Len(t, token, sessionIDLength)
		for _, c := range token {
			require.True(t, strings.ContainsRune(tokenCharset, c), "unexpected character %q", c)
		}
		assert.False(t, seen[token], "duplicate token %s", token)
		seen[token] = true
	}
}
