package crypto_test

import (
	"testing"

	"github.com/marden/bookpool/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor(t *testing.T) {
	t.Run("roundtrip with generated key", func(t *testing.T) {
		enc, err := crypto.NewEncryptor("")
		require.NoError(t, err)

		ciphertext, err := enc.Encrypt([]byte("calendar-oauth-token"))
		require.NoError(t, err)
		assert.NotEqual(t, []byte("calendar-oauth-token"), ciphertext)

		plaintext, err := enc.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "calendar-oauth-token", string(plaintext))
	})

	t.Run("roundtrip with explicit key", func(t *testing.T) {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)

		enc1, err := crypto.NewEncryptor(key)
		require.NoError(t, err)
		enc2, err := crypto.NewEncryptor(key)
		require.NoError(t, err)

		encoded, err := enc1.EncryptString("refresh-token")
		require.NoError(t, err)

		decoded, err := enc2.DecryptString(encoded)
		require.NoError(t, err)
		assert.Equal(t, "refresh-token", decoded)
	})

	t.Run("decrypt fails with wrong key", func(t *testing.T) {
		enc1, err := crypto.NewEncryptor("")
		require.NoError(t, err)
		enc2, err := crypto.NewEncryptor("")
		require.NoError(t, err)

		ciphertext, err := enc1.Encrypt([]byte("secret"))
		require.NoError(t, err)

		_, err = enc2.Decrypt(ciphertext)
		assert.Error(t, err)
	})

	t.Run("invalid key rejected", func(t *testing.T) {
		_, err := crypto.NewEncryptor("not-a-valid-age-key")
		assert.Error(t, err)
	})
}
