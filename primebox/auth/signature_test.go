package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func operatorKeypair(t *testing.T) (wallet string, priv ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base58.Encode(pub), priv
}

func TestVerifyAcceptsOperatorSignature(t *testing.T) {
	wallet, priv := operatorKeypair(t)
	v := NewVerifier([]string{wallet})

	sig := base58.Encode(ed25519.Sign(priv, []byte(OperatorMessage)))
	assert.NoError(t, v.Verify(wallet, sig))
}

func TestVerifyRejectsUnknownWallet(t *testing.T) {
	wallet, priv := operatorKeypair(t)
	v := NewVerifier(nil)

	sig := base58.Encode(ed25519.Sign(priv, []byte(OperatorMessage)))
	assert.ErrorIs(t, v.Verify(wallet, sig), ErrNotOperator)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	wallet, _ := operatorKeypair(t)
	_, otherPriv := operatorKeypair(t)
	v := NewVerifier([]string{wallet})

	// Signature from a different key over the right message.
	sig := base58.Encode(ed25519.Sign(otherPriv, []byte(OperatorMessage)))
	assert.ErrorIs(t, v.Verify(wallet, sig), ErrInvalidSignature)
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	wallet, priv := operatorKeypair(t)
	v := NewVerifier([]string{wallet})

	sig := base58.Encode(ed25519.Sign(priv, []byte("some other message")))
	assert.ErrorIs(t, v.Verify(wallet, sig), ErrInvalidSignature)
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	wallet, _ := operatorKeypair(t)
	v := NewVerifier([]string{wallet})

	assert.ErrorIs(t, v.Verify(wallet, "tooshort"), ErrInvalidSignature)
}
