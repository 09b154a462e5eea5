package cmclient

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ParseToken extracts expiry and renewability from an opaque Steam token
// string. Steam's own refresh/access tokens are JWTs; this reads the
// unsigned payload segment only (no issuer key is available to this
// proxy, nor does it need one — it only ever presents the token back to
// Steam, which does its own verification).
func ParseToken(token string) (TokenInfo, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return TokenInfo{}, errors.New("cmclient: token is not a 3-part JWT")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return TokenInfo{}, errors.Wrap(err, "cmclient: decoding token payload")
	}

	var claims struct {
		Exp int64    `json:"exp"`
		Aud []string `json:"aud"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return TokenInfo{}, errors.Wrap(err, "cmclient: parsing token payload")
	}

	info := TokenInfo{Expiry: time.Unix(claims.Exp, 0)}
	for _, aud := range claims.Aud {
		if aud == "renew" {
			info.Renewable = true
		}
	}
	return info, nil
}

// SteamIDFromToken extracts the account's 64-bit Steam ID from the
// token's "sub" claim.
func SteamIDFromToken(token string) (uint64, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, errors.New("cmclient: token is not a 3-part JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return 0, errors.Wrap(err, "cmclient: decoding token payload")
	}
	var claims struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return 0, errors.Wrap(err, "cmclient: parsing token payload")
	}
	id, err := strconv.ParseUint(claims.Sub, 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "cmclient: parsing sub claim")
	}
	return id, nil
}
