package auction

import (
	"VaultQueue/internal/auth"
)

// Bid is one priority-jump offer against a queued redemption entry.
// Bids are collected off-record while a round is open and posted in a
// batch once it closes; the signature proves the entry's controller
// authorized these exact terms.
type Bid struct {
	RoundID         int64  `json:"round_id"`
	RedemptionID    int64  `json:"redemption_id"`
	RequestedShares int64  `json:"requested_shares"`
	FeeBps          int64  `json:"fee_bps"`
	Nonce           uint64 `json:"nonce"`
	Timestamp       int64  `json:"timestamp"` // submission time, unix seconds
	Signature       []byte `json:"signature"` // 65-byte compact secp256k1
}

// Digest returns the domain-separated digest the controller signed.
func (b *Bid) Digest() [32]byte {
	return auth.BidDigest(b.RoundID, b.RedemptionID, b.RequestedShares, b.FeeBps, b.Nonce, b.Timestamp)
}

// Signer recovers the address that signed the bid.
func (b *Bid) Signer() (auth.Address, error) {
	return auth.RecoverSigner(b.Digest(), b.Signature)
}
