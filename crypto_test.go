package stattracker_test

import (
	"testing"

	"github.com/FiskLee/stattracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestAES256GCM_RoundTrip(t *testing.T) {
	enc, err := stattracker.NewAES256GCM(testKey())
	require.NoError(t, err)

	plain := []byte(`{"~v~":1,"~1000~":3}`)
	sealed, err := enc.Encrypt(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, sealed)

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plain, opened)
}

func TestAES256GCM_InvalidKeyLength(t *testing.T) {
	_, err := stattracker.NewAES256GCM([]byte("short"))
	assert.ErrorIs(t, err, stattracker.ErrInvalidConfig)
}

func TestAES256GCM_TamperDetection(t *testing.T) {
	enc, err := stattracker.NewAES256GCM(make([]byte, 32))
	require.NoError(t, err)
	sealed, err := enc.Encrypt([]byte("secret"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF
	_, err = enc.Decrypt(sealed)
	assert.ErrorIs(t, err, stattracker.ErrSealFailed)
}

func TestAES256GCM_ShortCiphertext(t *testing.T) {
	enc, err := stattracker.NewAES256GCM(testKey())
	require.NoError(t, err)
	_, err = enc.Decrypt([]byte("tiny"))
	assert.ErrorIs(t, err, stattracker.ErrSealFailed)
}

func TestAES256GCM_SealedLayout(t *testing.T) {
	enc, err := stattracker.NewAES256GCM(testKey())
	require.NoError(t, err)

	a, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)
	b, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, byte(1), a[0])
	assert.Len(t, a, 1+12+len("payload")+16)
	assert.NotEqual(t, a, b, "nonces differ")

	a[0] = 9
	_, err = enc.Decrypt(a)
	assert.ErrorIs(t, err, stattracker.ErrSealFailed)
}
