package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// OperatorMessage is the fixed text operators sign to prove control of
// their wallet when calling management operations.
const OperatorMessage = "Update Primes Mint"

var (
	ErrNotOperator      = errors.New("wallet is not on the operator list")
	ErrInvalidSignature = errors.New("operator signature verification failed")
)

// Verifier checks signed management requests against an allow-list of
// operator wallets.
type Verifier struct {
	operators map[string]struct{}
}

func NewVerifier(operators []string) *Verifier {
	allowed := make(map[string]struct{}, len(operators))
	for _, op := range operators {
		allowed[op] = struct{}{}
	}
	return &Verifier{operators: allowed}
}

// Verify checks the wallet is allow-listed and that the base58 signature
// covers OperatorMessage under the wallet's ed25519 key.
func (v *Verifier) Verify(wallet, signature string) error {
	if _, ok := v.operators[wallet]; !ok {
		return ErrNotOperator
	}

	pub := base58.Decode(wallet)
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: wallet is not a valid public key", ErrInvalidSignature)
	}
	sig := base58.Decode(signature)
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: malformed signature", ErrInvalidSignature)
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(OperatorMessage), sig) {
		return ErrInvalidSignature
	}
	return nil
}
