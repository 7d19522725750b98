package bridge

import (
	"errors"
	"testing"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/go-playground/assert/v2"
)

func signTestJwt(t *testing.T, claims gojwt.MapClaims) string {
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	jwt, err := token.SignedString([]byte("test-secret"))
	assert.Equal(t, nil, err)
	return jwt
}

func TestParseSessionAuth(t *testing.T) {
	jwt := signTestJwt(t, gojwt.MapClaims{
		"user_id":   "userA",
		"room_id":   "room1",
		"client_id": "clientA",
	})

	auth, err := ParseSessionAuthUnverified(jwt)
	assert.Equal(t, nil, err)
	assert.Equal(t, "userA", auth.UserId)
	assert.Equal(t, "room1", auth.RoomId)
	assert.Equal(t, "clientA", auth.ClientId)
}

func TestParseSessionAuthMissingClaims(t *testing.T) {
	jwt := signTestJwt(t, gojwt.MapClaims{
		"user_id": "userA",
	})

	_, err := ParseSessionAuthUnverified(jwt)
	assert.Equal(t, true, errors.Is(err, ErrMissingClaim))
}

func TestParseSessionAuthMalformed(t *testing.T) {
	_, err := ParseSessionAuthUnverified("not-a-token")
	assert.Equal(t, true, err != nil)
}
