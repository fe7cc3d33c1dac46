package auth

import (
	"context"
	"errors"
	"net/http"

	"schooladmin/internal/apiclient"
)

// ErrInvalidCredentials is returned when the token endpoint rejects a sign-in.
var ErrInvalidCredentials = errors.New("auth: invalid username or password")

// TokenPair is the token endpoint response.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenClient exchanges credentials and refresh tokens at the API's token endpoint.
type TokenClient struct {
	api *apiclient.Client
}

// NewTokenClient uses api, whose BaseURL is the token endpoint base.
func NewTokenClient(api *apiclient.Client) *TokenClient {
	return &TokenClient{api: api}
}

// Obtain signs in with a username and password.
func (t *TokenClient) Obtain(ctx context.Context, username, password string) (TokenPair, error) {
	res := apiclient.Fetch[TokenPair](ctx, t.api, apiclient.Request{
		Method:   http.MethodPost,
		Path:     "/token/",
		Body:     map[string]string{"username": username, "password": password},
		SkipAuth: true,
	})
	switch {
	case res.Unauthorized:
		return TokenPair{}, ErrInvalidCredentials
	case !res.Success:
		return TokenPair{}, errors.New(res.Error)
	case res.Data == nil || res.Data.Access == "":
		return TokenPair{}, errors.New("auth: token response without access token")
	}
	return *res.Data, nil
}

// Refresh trades a refresh token for a new access token. The refresh token
// is kept when the endpoint does not rotate it.
func (t *TokenClient) Refresh(ctx context.Context, refresh string) (TokenPair, error) {
	if refresh == "" {
		return TokenPair{}, errors.New("auth: no refresh token")
	}
	res := apiclient.Fetch[TokenPair](ctx, t.api, apiclient.Request{
		Method:   http.MethodPost,
		Path:     "/token/refresh/",
		Body:     map[string]string{"refresh": refresh},
		SkipAuth: true,
	})
	if !res.Success {
		return TokenPair{}, errors.New(res.Error)
	}
	if res.Data == nil || res.Data.Access == "" {
		return TokenPair{}, errors.New("auth: refresh response without access token")
	}
	pair := *res.Data
	if pair.Refresh == "" {
		pair.Refresh = refresh
	}
	return pair, nil
}
