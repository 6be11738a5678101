// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcptool

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// OAuthConfig describes an MCP server's OAuth 2.1 authorization server,
// including the endpoints needed for PKCE-protected authorization-code
// exchange and, when ClientID is empty, RFC 7591 dynamic client
// registration.
type OAuthConfig struct {
	AuthorizationEndpoint string
	TokenEndpoint         string
	RegistrationEndpoint  string // used when ClientID is empty
	ClientID              string
	ClientSecret          string
	Scopes                []string
	RedirectURL           string

	// AuthorizeCode obtains the authorization code for a given consent URL,
	// e.g. by driving a local browser-based redirect listener. Required
	// unless a pre-obtained RefreshToken is supplied.
	AuthorizeCode func(ctx context.Context, authorizeURL string) (code string, err error)

	// RefreshToken seeds the session with a previously obtained refresh
	// token, skipping the interactive authorization step entirely.
	RefreshToken string
}

// oauthSession manages one OAuth 2.1 + PKCE token: dynamic client
// registration on first use, then token acquisition (a refresh-token
// exchange when a refresh token is available, else the authorization-code
// flow), all behind a cached *oauth2.Token guarded by a mutex (the MCP
// toolset may be called concurrently by several in-flight tool requests).
// The token is acquired when the Box connects; accessToken returns the
// cached token as-is and does not renew it once it expires.
type oauthSession struct {
	cfg OAuthConfig

	mu           sync.Mutex
	oauth2Config oauth2.Config
	token        *oauth2.Token
	registered   bool
}

func newOAuthSession(cfg OAuthConfig) *oauthSession {
	return &oauthSession{cfg: cfg}
}

// ensureRegistered performs dynamic client registration if no static
// ClientID was configured, then (if no cached token yet) drives the
// PKCE authorization-code flow or refresh-token exchange to obtain one.
func (s *oauthSession) ensureRegistered(ctx context.Context, client *http.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.registered {
		clientID, clientSecret := s.cfg.ClientID, s.cfg.ClientSecret
		if clientID == "" {
			var err error
			clientID, clientSecret, err = registerDynamicClient(ctx, client, s.cfg)
			if err != nil {
				return fmt.Errorf("dynamic client registration: %w", err)
			}
		}
		s.oauth2Config = oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  s.cfg.AuthorizationEndpoint,
				TokenURL: s.cfg.TokenEndpoint,
			},
			RedirectURL: s.cfg.RedirectURL,
			Scopes:      s.cfg.Scopes,
		}
		s.registered = true
	}

	if s.token != nil && s.token.Valid() {
		return nil
	}
	if s.cfg.RefreshToken != "" && s.token == nil {
		s.token = &oauth2.Token{RefreshToken: s.cfg.RefreshToken}
	}
	if s.token != nil && s.token.RefreshToken != "" {
		refreshed, err := s.oauth2Config.TokenSource(ctx, s.token).Token()
		if err == nil {
			s.token = refreshed
			return nil
		}
		// fall through to a full authorization round trip if refresh fails
	}

	return s.authorize(ctx)
}

// authorize runs the PKCE authorization-code exchange: generate a verifier
// and challenge, obtain a code via AuthorizeCode, then exchange it for a
// token.
func (s *oauthSession) authorize(ctx context.Context) error {
	if s.cfg.AuthorizeCode == nil {
		return fmt.Errorf("oauth: no cached token and no AuthorizeCode callback configured")
	}
	verifier := oauth2.GenerateVerifier()
	challenge := pkceChallenge(verifier)

	authURL := s.oauth2Config.AuthCodeURL("state",
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	code, err := s.cfg.AuthorizeCode(ctx, authURL)
	if err != nil {
		return fmt.Errorf("obtaining authorization code: %w", err)
	}

	token, err := s.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	s.token = token
	return nil
}

func (s *oauthSession) accessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return ""
	}
	return s.token.AccessToken
}

// pkceChallenge computes the S256 code challenge for a given verifier, per
// RFC 7636. oauth2.GenerateVerifier already produces a compliant verifier;
// this mirrors its own challenge derivation so the value can be logged or
// inspected independently of calling AuthCodeURL with S256AuthCodeOption.
func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// dynamicClientRegistrationRequest is the RFC 7591 request body.
type dynamicClientRegistrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

type dynamicClientRegistrationResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// registerDynamicClient performs RFC 7591 dynamic client registration
// against cfg.RegistrationEndpoint, returning the issued client_id (and
// client_secret, for confidential clients; MCP clients are typically
// public, so this is often empty).
func registerDynamicClient(ctx context.Context, client *http.Client, cfg OAuthConfig) (clientID, clientSecret string, err error) {
	if cfg.RegistrationEndpoint == "" {
		return "", "", fmt.Errorf("no registration_endpoint configured and no static client_id supplied")
	}

	reqBody := dynamicClientRegistrationRequest{
		ClientName:              clientName,
		RedirectURIs:            []string{cfg.RedirectURL},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", "", fmt.Errorf("encoding registration request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.RegistrationEndpoint, strings.NewReader(string(body)))
	if err != nil {
		return "", "", fmt.Errorf("building registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("registration request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("registration endpoint returned http %d", resp.StatusCode)
	}

	var parsed dynamicClientRegistrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", fmt.Errorf("decoding registration response: %w", err)
	}
	if parsed.ClientID == "" {
		return "", "", fmt.Errorf("registration response missing client_id")
	}
	return parsed.ClientID, parsed.ClientSecret, nil
}
