package walletauth

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/walletauth/internal/eth"
)

// SignIn runs the whole challenge-response flow for the account of key
func SignIn(ctx context.Context, c Client, key *ecdsa.PrivateKey) (*Login, error) {
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	challenge, err := c.Challenge(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	signature, err := eth.SignText(key, challenge)
	if err != nil {
		return nil, err
	}

	login, err := c.Login(ctx, address, challenge, signature)
	if err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}

	return login, nil
}
