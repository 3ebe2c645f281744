package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestIssueAndVerifyCapability(t *testing.T) {
	admin, err := GenerateKey()
	if err != nil {
		t.Fatalf("admin keygen failed: %v", err)
	}
	holder := common.HexToAddress("0xAA00000000000000000000000000000000000000")

	cap, err := IssueCapability(admin, holder)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if len(cap.Signature) != 65 {
		t.Errorf("signature length = %d, want 65", len(cap.Signature))
	}

	if !cap.Verify(admin.Address(), holder) {
		t.Error("valid capability rejected")
	}
}

func TestCapabilityBindsToHolder(t *testing.T) {
	admin, _ := GenerateKey()
	holder := common.HexToAddress("0xAA00000000000000000000000000000000000000")
	thief := common.HexToAddress("0xBB00000000000000000000000000000000000000")

	cap, err := IssueCapability(admin, holder)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// Presenting someone else's capability fails.
	if cap.Verify(admin.Address(), thief) {
		t.Error("capability accepted for wrong caller")
	}

	// Reassigning the holder breaks the signature binding.
	forged := Capability{Holder: thief, Signature: cap.Signature}
	if forged.Verify(admin.Address(), thief) {
		t.Error("forged holder accepted")
	}
}

func TestCapabilityRejectsWrongIssuer(t *testing.T) {
	admin, _ := GenerateKey()
	imposter, _ := GenerateKey()
	holder := common.HexToAddress("0xAA00000000000000000000000000000000000000")

	cap, err := IssueCapability(imposter, holder)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if cap.Verify(admin.Address(), holder) {
		t.Error("capability from wrong issuer accepted")
	}
}

func TestCapabilityRejectsGarbageSignature(t *testing.T) {
	admin, _ := GenerateKey()
	holder := common.HexToAddress("0xAA00000000000000000000000000000000000000")

	cap := Capability{Holder: holder, Signature: make([]byte, 65)}
	if cap.Verify(admin.Address(), holder) {
		t.Error("garbage signature accepted")
	}

	short := Capability{Holder: holder, Signature: []byte{1, 2, 3}}
	if short.Verify(admin.Address(), holder) {
		t.Error("short signature accepted")
	}
}

func TestSignerRoundTrip(t *testing.T) {
	s, err := GenerateKey()
	if err != nil {
		t.Fatalf("keygen failed: %v", err)
	}

	hash := make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}

	sig, err := s.Sign(hash)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	recovered, err := RecoverAddress(hash, sig)
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if recovered != s.Address() {
		t.Errorf("recovered = %s, want %s", recovered.Hex(), s.Address().Hex())
	}

	if _, err := s.Sign([]byte{1, 2, 3}); err == nil {
		t.Error("short hash should be rejected")
	}
}
