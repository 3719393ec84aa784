package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
)

// AccessTokenPayload is the input to MintAccessToken. An empty JTI is
// replaced with a random one.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Role     enums.UserRole
	SellerID *uuid.UUID
	JTI      string
}

// AccessTokenClaims is the token body. SellerID is only present for seller
// accounts.
type AccessTokenClaims struct {
	UserID   uuid.UUID      `json:"user_id"`
	Role     enums.UserRole `json:"role"`
	SellerID *uuid.UUID     `json:"seller_id,omitempty"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claim checks during parsing.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token is missing user_id")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("token carries unknown role %q", c.Role)
	}
	return nil
}
