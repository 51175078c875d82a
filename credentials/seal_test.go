package credentials

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealRoundTrip(t *testing.T) {
	plaintext := []byte("LINKEDIN_CLIENT_SECRET=abc\n")

	sealed, err := Seal(plaintext, []byte("hunter2"))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "abc")

	opened, err := Unseal(sealed, []byte("hunter2"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestUnsealWrongPassphrase(t *testing.T) {
	sealed, err := Seal([]byte("x"), []byte("right"))
	require.NoError(t, err)

	_, err = Unseal(sealed, []byte("wrong"))
	assert.True(t, errors.Is(err, ErrWrongPassphrase))
}

func TestUnsealGarbage(t *testing.T) {
	_, err := Unseal([]byte("LINKEDIN_CLIENT_ID=abc"), []byte("pw"))
	assert.Error(t, err)

	_, err = Unseal(sealMagic, []byte("pw"))
	assert.True(t, errors.Is(err, ErrWrongPassphrase))
}
