package ton

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"
)

func signedProof(t *testing.T, now time.Time, domain string) (pubHex string, hash []byte, proof Proof) {
	t.Helper()
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}

	hash = make([]byte, 32)
	for i := range hash {
		hash[i] = byte(i)
	}

	proof = Proof{
		Timestamp: now.Unix(),
		Domain:    ProofDomain{LengthBytes: len(domain), Value: domain},
		Payload:   "test-nonce-12345",
	}
	digest := ProofDigest(0, hash, proof)
	proof.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(privKey, digest[:]))
	return hex.EncodeToString(pubKey), hash, proof
}

func TestVerifyProof_ValidSignature(t *testing.T) {
	now := time.Now()
	pub, hash, proof := signedProof(t, now, "test.example.com")

	if err := VerifyProof(now, pub, 0, hash, proof, []string{"test.example.com"}); err != nil {
		t.Fatalf("expected valid proof, got error: %v", err)
	}
}

func TestVerifyProof_HexSignature(t *testing.T) {
	now := time.Now()
	pub, hash, proof := signedProof(t, now, "test.example.com")
	sig, _ := base64.StdEncoding.DecodeString(proof.Signature)
	proof.Signature = hex.EncodeToString(sig)

	if err := VerifyProof(now, pub, 0, hash, proof, nil); err != nil {
		t.Fatalf("expected hex signature to verify, got: %v", err)
	}
}

func TestVerifyProof_TamperedPayload(t *testing.T) {
	now := time.Now()
	pub, hash, proof := signedProof(t, now, "test.example.com")
	proof.Payload = "other-nonce"

	if err := VerifyProof(now, pub, 0, hash, proof, nil); err == nil {
		t.Fatal("expected error for tampered payload")
	}
}

func TestVerifyProof_ExpiredTimestamp(t *testing.T) {
	now := time.Now()
	pub, hash, proof := signedProof(t, now.Add(-10*time.Minute), "test")

	if err := VerifyProof(now, pub, 0, hash, proof, nil); err == nil {
		t.Fatal("expected error for expired proof")
	}
}

func TestVerifyProof_FutureTimestamp(t *testing.T) {
	now := time.Now()
	pub, hash, proof := signedProof(t, now.Add(5*time.Minute), "test")

	if err := VerifyProof(now, pub, 0, hash, proof, nil); err == nil {
		t.Fatal("expected error for future proof")
	}
}

func TestVerifyProof_WrongDomain(t *testing.T) {
	now := time.Now()
	pub, hash, proof := signedProof(t, now, "evil.com")

	if err := VerifyProof(now, pub, 0, hash, proof, []string{"good.com"}); err == nil {
		t.Fatal("expected error for wrong domain")
	}
}

func TestVerifyProof_InvalidSignature(t *testing.T) {
	now := time.Now()
	pub, hash, proof := signedProof(t, now, "test")
	proof.Signature = base64.StdEncoding.EncodeToString(make([]byte, 64)) // нулевая подпись

	if err := VerifyProof(now, pub, 0, hash, proof, nil); err == nil {
		t.Fatal("expected error for invalid signature")
	}
}

func TestVerifyProof_BadPublicKey(t *testing.T) {
	now := time.Now()
	_, hash, proof := signedProof(t, now, "test")

	if err := VerifyProof(now, "zz", 0, hash, proof, nil); err == nil {
		t.Fatal("expected error for malformed public key")
	}
}

func TestNetworkName(t *testing.T) {
	if got := NetworkName(NetworkMainnet); got != "mainnet" {
		t.Errorf("NetworkName(-239) = %q", got)
	}
	if got := NetworkName(NetworkTestnet); got != "testnet" {
		t.Errorf("NetworkName(-3) = %q", got)
	}
}
