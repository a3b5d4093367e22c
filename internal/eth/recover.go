// Package eth recovers and produces "personal sign" (EIP-191 version 0x45)
// signatures over text messages.
package eth

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/core"
)

// RecoverAddress returns the account that signed message, given its
// hex-encoded 65-byte [R || S || V] signature. V may be 0/1 or 27/28.
func RecoverAddress(message, signatureHex string) (common.Address, error) {
	sig, err := decodeSignature(signatureHex)
	if err != nil {
		return common.Address{}, err
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", core.ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// SignText signs message the way wallets do for personal_sign and returns the
// 0x-prefixed signature with V in 27/28 form.
func SignText(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}

func decodeSignature(signatureHex string) ([]byte, error) {
	raw := strings.TrimSpace(signatureHex)
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		raw = raw[2:]
	}

	sig, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}

	v := sig[crypto.RecoveryIDOffset]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, fmt.Errorf("invalid recovery id %d: %w", sig[crypto.RecoveryIDOffset], core.ErrInvalidSignature)
	}
	sig[crypto.RecoveryIDOffset] = v

	return sig, nil
}
