package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	FamilyID  string           `json:"fid"`
	RefreshID string           `json:"rid"` // ID of the refresh token issued alongside
	Rotation  int              `json:"rot"`
	AuthTime  *jwt.NumericDate `json:"auth_time"`
}

// RefreshClaims combines standard claims with the rotation state
type RefreshClaims struct {
	jwt.RegisteredClaims
	FamilyID string           `json:"fid"`
	Rotation int              `json:"rot"`
	AuthTime *jwt.NumericDate `json:"auth_time"`
}
