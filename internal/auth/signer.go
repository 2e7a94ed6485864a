package auth

import (
	"encoding/binary"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// bidDomainTag separates bid digests from any other signed payload.
const bidDomainTag = "vaultqueue/bid/v1"

// SignatureLength is the compact signature length (recovery byte + r + s).
const SignatureLength = 65

// BidDigest computes the domain-separated Keccak-256 digest a controller
// signs to authorize a priority bid. It binds every field that affects how
// the bid is applied, so a signature cannot be replayed with altered terms.
func BidDigest(roundID, redemptionID int64, requestedShares, feeBps int64, nonce uint64, timestamp int64) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(bidDomainTag))

	var buf [8]byte
	for _, v := range []uint64{
		uint64(roundID),
		uint64(redemptionID),
		uint64(requestedShares),
		uint64(feeBps),
		nonce,
		uint64(timestamp),
	} {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// SignBid produces a 65-byte compact signature over a bid digest.
// Used by tests and the off-record bid-submission tooling; the engine
// itself only verifies.
func SignBid(key *secp256k1.PrivateKey, digest [32]byte) []byte {
	return ecdsa.SignCompact(key, digest[:], false)
}

// RecoverSigner recovers the address that produced the given compact
// signature over digest.
func RecoverSigner(digest [32]byte, signature []byte) (Address, error) {
	if len(signature) != SignatureLength {
		return Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}

	pub, _, err := ecdsa.RecoverCompact(signature, digest[:])
	if err != nil {
		return Address{}, fmt.Errorf("recover signer: %w", err)
	}

	return PubKeyToAddress(pub), nil
}
