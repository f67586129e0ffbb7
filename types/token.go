package types

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn float64 `json:"expires_in"`
}
