package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// capabilityDomain separates pause-capability digests from anything else the
// admin key might sign.
const capabilityDomain = "tally/pause-capability/v1"

// Capability is an unforgeable administrative credential: a signature by the
// admin key over a domain-separated digest of the holder's address. Privilege
// is never a stored flag on any ledger; the credential itself must be
// presented to each privileged call.
type Capability struct {
	Holder    common.Address `json:"holder"`
	Signature []byte         `json:"signature"` // 65-byte [R || S || V]
}

// capabilityDigest is keccak256(domain || holder).
func capabilityDigest(holder common.Address) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(capabilityDomain))
	h.Write(holder.Bytes())
	return h.Sum(nil)
}

// IssueCapability signs a capability for holder with the admin key.
func IssueCapability(admin *Signer, holder common.Address) (Capability, error) {
	sig, err := admin.Sign(capabilityDigest(holder))
	if err != nil {
		return Capability{}, err
	}
	return Capability{Holder: holder, Signature: sig}, nil
}

// Verify reports whether the capability was issued by admin for caller.
func (c Capability) Verify(admin, caller common.Address) bool {
	if caller != c.Holder {
		return false
	}
	recovered, err := RecoverAddress(capabilityDigest(c.Holder), c.Signature)
	if err != nil {
		return false
	}
	return recovered == admin
}
