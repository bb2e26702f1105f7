package ton

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	// TonProofPrefix: фиксированный префикс для TON Proof по спецификации TON Connect.
	// https://docs.ton.org/develop/dapps/ton-connect/sign#checking-ton_proof-on-server-side
	TonProofPrefix = "ton-proof-item-v2/"

	// TonConnectPrefix: префикс перед SHA256 хешем сообщения.
	TonConnectPrefix = "ton-connect"

	// MaxProofAge: максимальный возраст proof (защита от replay).
	MaxProofAge = 5 * time.Minute

	NetworkMainnet = "-239"
	NetworkTestnet = "-3"
)

// ProofData is the ton_proof reply of a TON Connect wallet.
type ProofData struct {
	Address   string `json:"address"` // raw: 0:<hex>
	Network   string `json:"network"` // "-239" = mainnet, "-3" = testnet
	PublicKey string `json:"public_key"`
	Proof     Proof  `json:"proof"`
	StateInit string `json:"state_init,omitempty"`
}

type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Payload   string      `json:"payload"`   // наш nonce
	Signature string      `json:"signature"` // base64 (hex is accepted too)
}

type ProofDomain struct {
	LengthBytes int    `json:"lengthBytes"`
	Value       string `json:"value"`
}

// NetworkName maps a TON Connect chain id to mainnet/testnet.
func NetworkName(chain string) string {
	switch chain {
	case NetworkMainnet:
		return "mainnet"
	case NetworkTestnet:
		return "testnet"
	}
	return chain
}

// VerifyProof checks a TON Connect proof signed by pubKeyHex for the account
// workchain:addrHash.
//
//	message           = "ton-proof-item-v2/" ++ workchain(4 LE) ++ hash(32) ++ domain_len(4 LE) ++ domain ++ timestamp(8 LE) ++ payload
//	signature_message = 0xffff ++ "ton-connect" ++ sha256(message)
//	ed25519.Verify(pubKey, sha256(signature_message), signature)
func VerifyProof(now time.Time, pubKeyHex string, workchain int32, addrHash []byte, proof Proof, allowedDomains []string) error {
	proofTime := time.Unix(proof.Timestamp, 0)
	if now.Sub(proofTime) > MaxProofAge {
		return fmt.Errorf("proof expired: %s old", now.Sub(proofTime).Round(time.Second))
	}
	if proofTime.After(now.Add(time.Minute)) {
		return fmt.Errorf("proof timestamp is in the future")
	}
	if !isDomainAllowed(proof.Domain.Value, allowedDomains) {
		return fmt.Errorf("domain %q not in allowed list", proof.Domain.Value)
	}

	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key size: %d", len(pubKey))
	}

	sig, err := decodeSignature(proof.Signature)
	if err != nil {
		return err
	}

	digest := ProofDigest(workchain, addrHash, proof)
	if !ed25519.Verify(pubKey, digest[:], sig) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// ProofDigest is the hash a wallet signs for proof.
func ProofDigest(workchain int32, addrHash []byte, proof Proof) [32]byte {
	message := []byte(TonProofPrefix)
	message = binary.LittleEndian.AppendUint32(message, uint32(workchain))
	message = append(message, addrHash...)
	message = binary.LittleEndian.AppendUint32(message, uint32(proof.Domain.LengthBytes))
	message = append(message, proof.Domain.Value...)
	message = binary.LittleEndian.AppendUint64(message, uint64(proof.Timestamp))
	message = append(message, proof.Payload...)

	msgHash := sha256.Sum256(message)

	signatureMessage := []byte{0xff, 0xff}
	signatureMessage = append(signatureMessage, TonConnectPrefix...)
	signatureMessage = append(signatureMessage, msgHash[:]...)

	return sha256.Sum256(signatureMessage)
}

func decodeSignature(s string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(sig) != ed25519.SignatureSize {
		if h, herr := hex.DecodeString(s); herr == nil {
			sig, err = h, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature size: %d", len(sig))
	}
	return sig, nil
}

func isDomainAllowed(domain string, allowed []string) bool {
	if len(allowed) == 0 {
		return true // если список пуст, разрешаем всё (dev mode)
	}
	for _, d := range allowed {
		if d == domain {
			return true
		}
	}
	return false
}
