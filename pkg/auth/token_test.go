package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/config"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "marketplace",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()
	userID := uuid.New()
	sellerID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID:   userID,
		Role:     enums.UserRoleSeller,
		SellerID: &sellerID,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.SellerID == nil || *claims.SellerID != sellerID {
		t.Fatalf("seller id not preserved")
	}
	if claims.Role != enums.UserRoleSeller {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("issuer mismatch %q", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be generated")
	}
}

func TestParseAccessTokenRejects(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()
	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleBuyer})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	wrongSecret := cfg
	wrongSecret.Secret = "other"
	if _, err := ParseAccessToken(wrongSecret, token); err == nil {
		t.Fatal("expected signature mismatch")
	}

	wrongIssuer := cfg
	wrongIssuer.Issuer = "someone-else"
	if _, err := ParseAccessToken(wrongIssuer, token); err == nil {
		t.Fatal("expected issuer mismatch")
	}

	expired, err := MintAccessToken(cfg, now.Add(-2*time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleBuyer})
	if err != nil {
		t.Fatalf("mint expired: %v", err)
	}
	if _, err := ParseAccessToken(cfg, expired); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{UserID: uuid.New(), Role: enums.UserRoleAdmin})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := ParseAccessToken(cfg, raw); err == nil {
		t.Fatal("expected alg=none to be rejected")
	}
}

func TestMintAccessTokenValidatesPayload(t *testing.T) {
	cfg := testConfig()
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "owner"}); err == nil || !strings.Contains(err.Error(), "role") {
		t.Fatalf("expected role error, got %v", err)
	}
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.UserRoleBuyer}); err == nil {
		t.Fatal("expected missing user id error")
	}
	cfg.Secret = ""
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.UserRoleBuyer}); err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"bearer":      {"Bearer abc", "abc", true},
		"lower":       {"bearer  abc ", "abc", true},
		"raw":         {"abc", "abc", true},
		"empty":       {"   ", "", false},
	}
	for name, tc := range cases {
		token, ok := BearerToken(tc.header)
		if token != tc.token || ok != tc.ok {
			t.Fatalf("%s: got (%q, %v)", name, token, ok)
		}
	}
}

func TestParseAccessTokenRejectsUnknownRole(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   "owner",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ParseAccessToken(cfg, raw); err == nil || !strings.Contains(err.Error(), "unknown role") {
		t.Fatalf("expected unknown role rejection, got %v", err)
	}
}
