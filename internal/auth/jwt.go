package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Profile is the signed-in user as described by the access token.
type Profile struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// DisplayName prefers the full name over the username.
func (p Profile) DisplayName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.Username
}

// Claims represents the access token payload issued by the API.
type Claims struct {
	UserID      any    `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
	jwt.RegisteredClaims
}

func (c Claims) profile() Profile {
	id := ""
	switch v := c.UserID.(type) {
	case nil:
	case float64:
		id = fmt.Sprintf("%.0f", v)
	default:
		id = fmt.Sprint(v)
	}
	return Profile{
		ID:          id,
		Username:    c.Username,
		Name:        c.Name,
		Email:       c.Email,
		IsStaff:     c.IsStaff,
		IsSuperuser: c.IsSuperuser,
	}
}

// ParseAccess reads the profile and expiry from an access token. With an
// empty key the token is decoded without verification, since the API that
// issued it verifies it on every call anyway; with a key it must be a valid
// HS256 token.
func ParseAccess(tokenStr, key string) (Profile, time.Time, error) {
	claims := &Claims{}
	if key == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
			return Profile{}, time.Time{}, fmt.Errorf("auth: decode access token: %w", err)
		}
	} else {
		parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(key), nil
		})
		if err != nil {
			return Profile{}, time.Time{}, fmt.Errorf("auth: verify access token: %w", err)
		}
		if !parsed.Valid {
			return Profile{}, time.Time{}, errors.New("auth: invalid access token")
		}
	}

	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return claims.profile(), exp, nil
}
