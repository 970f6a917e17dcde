// Package identity reads the authenticated caller from a verified token.
package identity

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// LocalsKey is where the JWT middleware stores the verified token.
const LocalsKey = "user"

var ErrNoIdentity = errors.New("no authenticated caller")

func claims(c *fiber.Ctx) (jwt.MapClaims, error) {
	token, ok := c.Locals(LocalsKey).(*jwt.Token)
	if !ok || token == nil {
		return nil, ErrNoIdentity
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrNoIdentity
	}
	return mc, nil
}

// CallerID returns the user id carried in the sub claim.
func CallerID(c *fiber.Ctx) (uint, error) {
	mc, err := claims(c)
	if err != nil {
		return 0, err
	}
	sub, ok := mc["sub"].(string)
	if !ok {
		return 0, ErrNoIdentity
	}
	id, err := strconv.ParseUint(sub, 10, 64)
	if err != nil || id == 0 {
		return 0, ErrNoIdentity
	}
	return uint(id), nil
}

// TokenID returns the jti claim identifying the issued access token.
func TokenID(c *fiber.Ctx) (uuid.UUID, error) {
	mc, err := claims(c)
	if err != nil {
		return uuid.Nil, err
	}
	jti, ok := mc["jti"].(string)
	if !ok {
		return uuid.Nil, ErrNoIdentity
	}
	id, err := uuid.Parse(jti)
	if err != nil {
		return uuid.Nil, ErrNoIdentity
	}
	return id, nil
}
