package bridge

import (
	"fmt"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// SessionAuth is the identity the sync service issued for one session.
// The token is verified server side; the client only needs the claims.
type SessionAuth struct {
	UserId   string
	RoomId   string
	ClientId string
}

// ParseSessionAuthUnverified extracts the session claims without
// verifying the signature. Verification happens at the service.
func ParseSessionAuthUnverified(jwt string) (*SessionAuth, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(jwt, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	auth := &SessionAuth{}
	if userId, ok := claims["user_id"].(string); ok {
		auth.UserId = userId
	}
	if roomId, ok := claims["room_id"].(string); ok {
		auth.RoomId = roomId
	}
	if clientId, ok := claims["client_id"].(string); ok {
		auth.ClientId = clientId
	}

	if auth.UserId == "" || auth.RoomId == "" || auth.ClientId == "" {
		return nil, fmt.Errorf("%w: need user_id, room_id, client_id", ErrMissingClaim)
	}
	return auth, nil
}
