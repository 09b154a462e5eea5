package cmclient

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func buildToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	seg := base64.RawURLEncoding.EncodeToString(payload)
	return "header." + seg + ".sig"
}

func TestParseTokenReadsExpiryAndRenewableAudience(t *testing.T) {
	exp := time.Now().Add(24 * time.Hour).Unix()
	tok := buildToken(t, map[string]any{"exp": exp, "aud": []string{"web", "renew"}})

	info, err := ParseToken(tok)
	require.NoError(t, err)
	require.Equal(t, exp, info.Expiry.Unix())
	require.True(t, info.Renewable)
}

func TestParseTokenNotRenewableWithoutRenewAudience(t *testing.T) {
	tok := buildToken(t, map[string]any{"exp": 0, "aud": []string{"web"}})
	info, err := ParseToken(tok)
	require.NoError(t, err)
	require.False(t, info.Renewable)
}

func TestParseTokenRejectsNonJWTShape(t *testing.T) {
	_, err := ParseToken("not-a-jwt")
	require.Error(t, err)
}

func TestSteamIDFromTokenParsesSubClaim(t *testing.T) {
	tok := buildToken(t, map[string]any{"sub": "76561198000000042"})
	id, err := SteamIDFromToken(tok)
	require.NoError(t, err)
	require.EqualValues(t, 76561198000000042, id)
}

func TestSteamIDFromTokenRejectsNonNumericSub(t *testing.T) {
	tok := buildToken(t, map[string]any{"sub": "not-a-number"})
	_, err := SteamIDFromToken(tok)
	require.Error(t, err)
}
