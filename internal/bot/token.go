package bot

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/disgoorg/snowflake/v2"
)

// ErrMalformedToken is returned for tokens that do not carry a user id.
var ErrMalformedToken = errors.New("malformed bot token")

// UserIDFromToken returns the bot user id encoded in the first segment of
// a Discord bot token. It is known before the gateway session is opened.
func UserIDFromToken(token string) (snowflake.ID, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bot ")

	segment, _, ok := strings.Cut(token, ".")
	if !ok || segment == "" {
		return 0, ErrMalformedToken
	}
	segment = strings.TrimRight(segment, "=")

	decoded, err := base64.RawStdEncoding.DecodeString(segment)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(segment)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	id, err := snowflake.Parse(string(decoded))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	return id, nil
}
