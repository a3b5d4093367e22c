package ports

import "github.com/layer-3/walletauth/core"

// Tokenizer converts sessions to self-contained access tokens and back
type Tokenizer interface {
	SessionToAccessToken(session *core.Session) (string, error)
	AccessTokenToSession(token string) (*core.Session, error)
}
