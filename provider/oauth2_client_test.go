package provider_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/provider"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/stretchr/testify/require"
)

const testClientID = "client-123"

// fakeIdP is a minimal OpenID provider: discovery, token, revocation and
// tokeninfo endpoints.
type fakeIdP struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	revoked      []url.Values
	refreshCalls int
	rotateTo     string
	revokeStatus int
	challenge    string
	idToken      string
	loginRefresh string
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	idp := &fakeIdP{t: t, revokeStatus: http.StatusOK, loginRefresh: "r-login"}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"issuer":                 idp.srv.URL,
			"authorization_endpoint": idp.srv.URL + "/authorize",
			"token_endpoint":         idp.srv.URL + "/token",
			"jwks_uri":               idp.srv.URL + "/jwks",
			"revocation_endpoint":    idp.srv.URL + "/revoke",
		})
	})
	mux.HandleFunc("/token", idp.handleToken)
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		idp.mu.Lock()
		idp.revoked = append(idp.revoked, r.PostForm)
		status := idp.revokeStatus
		idp.mu.Unlock()
		w.WriteHeader(status)
	})
	mux.HandleFunc("/tokeninfo", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "at-1" {
			http.Error(w, `{"error":"invalid_token"}`, http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"azp":"client-123","aud":"client-123","sub":"u1","scope":"openid email",` +
			`"exp":"1700003600","expires_in":"3542","email":"u1@example.com","email_verified":"true","access_type":"offline"}`))
	})

	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

func (idp *fakeIdP) handleToken(w http.ResponseWriter, r *http.Request) {
	require.NoError(idp.t, r.ParseForm())
	idp.mu.Lock()
	defer idp.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "refresh_token":
		idp.refreshCalls++
		if r.PostForm.Get("refresh_token") == "revoked" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
			return
		}
		resp := map[string]any{"access_token": "at-1", "token_type": "Bearer", "expires_in": 3600}
		if idp.rotateTo != "" {
			resp["refresh_token"] = idp.rotateTo
		}
		writeJSON(w, resp)

	case "authorization_code":
		verifier := r.PostForm.Get("code_verifier")
		sum := sha256.Sum256([]byte(verifier))
		if r.PostForm.Get("code") != "the-code" || base64.RawURLEncoding.EncodeToString(sum[:]) != idp.challenge {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		resp := map[string]any{
			"access_token": "at-login",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idp.idToken,
		}
		if idp.loginRefresh != "" {
			resp["refresh_token"] = idp.loginRefresh
		}
		writeJSON(w, resp)

	default:
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
	}
}

func (idp *fakeIdP) revocations() []url.Values {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	return append([]url.Values(nil), idp.revoked...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type testFixture struct {
	idp     *fakeIdP
	records *store.Records
	mem     *store.InMemoryStore
	client  *provider.OAuth2Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	idp := newFakeIdP(t)
	mem := store.NewInMemoryStore()
	records := store.NewRecords(mem, "")

	client, err := provider.NewOAuth2Client(context.Background(), provider.Settings{
		Issuer:       idp.srv.URL,
		ClientID:     testClientID,
		ClientSecret: "shh",
		Scopes:       []string{"openid", "email"},
		TokenInfoURL: idp.srv.URL + "/tokeninfo",
	}, records, provider.WithRetryMax(0))
	require.NoError(t, err)

	return &testFixture{idp: idp, records: records, mem: mem, client: client}
}

func (f *testFixture) seedGrant(t *testing.T, refreshToken, hint string) {
	t.Helper()
	data, err := json.Marshal(map[string]string{"refresh_token": refreshToken, "hint": hint})
	require.NoError(t, err)
	require.NoError(t, f.mem.Set(f.records.RefreshGrantKey(), string(data)))
}

func TestNewOAuth2Client(t *testing.T) {
	t.Run("requires client id", func(t *testing.T) {
		_, err := provider.NewOAuth2Client(context.Background(), provider.Settings{TokenURL: "http://x"}, store.NewRecords(store.NewInMemoryStore(), ""))
		require.ErrorIs(t, err, errors.ErrInvalidConfig)
	})

	t.Run("requires a token endpoint without discovery", func(t *testing.T) {
		_, err := provider.NewOAuth2Client(context.Background(), provider.Settings{ClientID: "c"}, store.NewRecords(store.NewInMemoryStore(), ""))
		require.ErrorIs(t, err, errors.ErrInvalidConfig)
	})

	t.Run("discovery failure", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()
		_, err := provider.NewOAuth2Client(context.Background(), provider.Settings{ClientID: "c", Issuer: srv.URL},
			store.NewRecords(store.NewInMemoryStore(), ""), provider.WithRetryMax(0))
		require.ErrorIs(t, err, errors.ErrInvalidConfig)
	})
}

func TestOAuth2Client_Refresh(t *testing.T) {
	t.Run("no grant", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.client.Refresh(context.Background(), provider.CredentialRequest{Hint: "u1@example.com"})
		require.ErrorIs(t, err, errors.ErrProviderIssuance)
		require.ErrorIs(t, err, errors.ErrNoGrant)
		require.False(t, f.client.HasGrant())
	})

	t.Run("issues from grant and keeps rotated grant", func(t *testing.T) {
		f := setupTestFixture(t)
		f.seedGrant(t, "r1", "u1@example.com")
		f.idp.mu.Lock()
		f.idp.rotateTo = "r2"
		f.idp.mu.Unlock()

		issued, err := f.client.Refresh(context.Background(), provider.CredentialRequest{Hint: "U1@example.com"})
		require.NoError(t, err)
		require.Equal(t, "at-1", issued.AccessToken)
		require.InDelta(t, time.Hour.Seconds(), issued.ExpiresIn.Seconds(), 2)

		raw, err := f.mem.Get(f.records.RefreshGrantKey())
		require.NoError(t, err)
		require.Contains(t, raw, `"refresh_token":"r2"`)
	})

	t.Run("grant for another account", func(t *testing.T) {
		f := setupTestFixture(t)
		f.seedGrant(t, "r1", "u1@example.com")

		_, err := f.client.Refresh(context.Background(), provider.CredentialRequest{Hint: "u2@example.com"})
		require.ErrorIs(t, err, errors.ErrProviderIssuance)
		f.idp.mu.Lock()
		defer f.idp.mu.Unlock()
		require.Zero(t, f.idp.refreshCalls)
	})

	t.Run("rejected grant is forgotten", func(t *testing.T) {
		f := setupTestFixture(t)
		f.seedGrant(t, "revoked", "")

		_, err := f.client.Refresh(context.Background(), provider.CredentialRequest{})
		require.ErrorIs(t, err, errors.ErrProviderIssuance)
		require.ErrorIs(t, err, errors.ErrNoGrant)
		require.False(t, f.client.HasGrant())
	})

	t.Run("unreadable grant", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.mem.Set(f.records.RefreshGrantKey(), "{not json"))
		_, err := f.client.Refresh(context.Background(), provider.CredentialRequest{})
		require.ErrorIs(t, err, errors.ErrNoGrant)
	})
}

func TestOAuth2Client_RequestAccessCredential(t *testing.T) {
	f := setupTestFixture(t)
	f.seedGrant(t, "r1", "u1@example.com")

	type outcome struct {
		issued provider.IssuedCredential
		err    error
	}
	done := make(chan outcome, 1)
	f.client.RequestAccessCredential(context.Background(), provider.CredentialRequest{Hint: "u1@example.com"},
		func(issued provider.IssuedCredential, err error) {
			done <- outcome{issued, err}
		})

	select {
	case got := <-done:
		require.NoError(t, got.err)
		require.Equal(t, "at-1", got.issued.AccessToken)
	case <-time.After(5 * time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestOAuth2Client_Revoke(t *testing.T) {
	t.Run("access token", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.client.RevokeAccessCredential(context.Background(), ""))
		require.Empty(t, f.idp.revocations())

		require.NoError(t, f.client.RevokeAccessCredential(context.Background(), "at-1"))
		revoked := f.idp.revocations()
		require.Len(t, revoked, 1)
		require.Equal(t, "at-1", revoked[0].Get("token"))
		require.Equal(t, "access_token", revoked[0].Get("token_type_hint"))
		require.Equal(t, testClientID, revoked[0].Get("client_id"))
		require.Equal(t, "shh", revoked[0].Get("client_secret"))
	})

	t.Run("identity revokes and forgets the grant", func(t *testing.T) {
		f := setupTestFixture(t)
		f.seedGrant(t, "r1", "u1@example.com")

		require.NoError(t, f.client.RevokeIdentityAssertion(context.Background(), "u1@example.com"))
		revoked := f.idp.revocations()
		require.Len(t, revoked, 1)
		require.Equal(t, "r1", revoked[0].Get("token"))
		require.Equal(t, "refresh_token", revoked[0].Get("token_type_hint"))
		require.False(t, f.client.HasGrant())

		require.NoError(t, f.client.RevokeIdentityAssertion(context.Background(), "u1@example.com"))
		require.Len(t, f.idp.revocations(), 1, "nothing left to revoke")
	})

	t.Run("provider refusal", func(t *testing.T) {
		f := setupTestFixture(t)
		f.seedGrant(t, "r1", "u1@example.com")
		f.idp.mu.Lock()
		f.idp.revokeStatus = http.StatusBadRequest
		f.idp.mu.Unlock()

		err := f.client.RevokeIdentityAssertion(context.Background(), "u1@example.com")
		require.ErrorIs(t, err, errors.ErrRevocation)
		require.False(t, f.client.HasGrant(), "local grant is dropped regardless")

		err = f.client.RevokeAccessCredential(context.Background(), "at-1")
		require.ErrorIs(t, err, errors.ErrRevocation)
	})

	t.Run("no revocation endpoint", func(t *testing.T) {
		idp := newFakeIdP(t)
		client, err := provider.NewOAuth2Client(context.Background(), provider.Settings{
			ClientID: testClientID,
			TokenURL: idp.srv.URL + "/token",
		}, store.NewRecords(store.NewInMemoryStore(), ""), provider.WithRetryMax(0))
		require.NoError(t, err)

		err = client.RevokeAccessCredential(context.Background(), "at-1")
		require.ErrorIs(t, err, errors.ErrRevocation)
		require.ErrorIs(t, err, errors.ErrUnsupported)
	})
}

func TestOAuth2Client_TokenInfo(t *testing.T) {
	f := setupTestFixture(t)

	info, err := f.client.TokenInfo(context.Background(), "at-1")
	require.NoError(t, err)
	require.Equal(t, "u1", info.Subject)
	require.Equal(t, []string{"openid", "email"}, info.Scopes())
	require.Equal(t, time.Unix(1700003600, 0), info.Expiry())
	require.Equal(t, 3542*time.Second, info.Remaining())
	require.True(t, info.Verified())
	require.Equal(t, "offline", info.AccessType)

	_, err = f.client.TokenInfo(context.Background(), "unknown")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestOAuth2Client_Login(t *testing.T) {
	idp := newFakeIdP(t)
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub":   "u1",
		"email": "u1@example.com",
		"aud":   testClientID,
	}).SignedString([]byte("unchecked"))
	require.NoError(t, err)
	idp.mu.Lock()
	idp.idToken = raw
	idp.mu.Unlock()

	mem := store.NewInMemoryStore()
	records := store.NewRecords(mem, "")
	client, err := provider.NewOAuth2Client(context.Background(), provider.Settings{
		ClientID: testClientID,
		AuthURL:  idp.srv.URL + "/authorize",
		TokenURL: idp.srv.URL + "/token",
	}, records, provider.WithRetryMax(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := client.Login(ctx, provider.LoginOptions{
		Prompt: provider.PromptConsent,
		Hint:   "u1@example.com",
		Announce: func(authURL string) {
			u, err := url.Parse(authURL)
			require.NoError(t, err)
			q := u.Query()
			require.Equal(t, "consent", q.Get("prompt"))
			require.Equal(t, "u1@example.com", q.Get("login_hint"))
			require.Equal(t, "offline", q.Get("access_type"))
			require.Equal(t, "S256", q.Get("code_challenge_method"))
			require.NotEmpty(t, q.Get("nonce"))

			idp.mu.Lock()
			idp.challenge = q.Get("code_challenge")
			idp.mu.Unlock()

			go func() {
				stray, err := http.Get(q.Get("redirect_uri") + "?code=x&state=wrong")
				if err == nil {
					stray.Body.Close()
				}
				resp, err := http.Get(q.Get("redirect_uri") + "?code=the-code&state=" + url.QueryEscape(q.Get("state")))
				if err == nil {
					resp.Body.Close()
				}
			}()
		},
	})
	require.NoError(t, err)
	require.Equal(t, raw, result.RawIDToken)
	require.Equal(t, "u1", result.Assertion.Subject)
	require.True(t, result.HasGrant)
	require.True(t, client.HasGrant())
	requireLoginCredential(t, result)

	grant, err := mem.Get(records.RefreshGrantKey())
	require.NoError(t, err)
	require.Contains(t, grant, `"refresh_token":"r-login"`)
	require.Contains(t, grant, `"hint":"u1@example.com"`)
}

func requireLoginCredential(t *testing.T, result *provider.LoginResult) {
	t.Helper()
	require.NotNil(t, result.Credential)
	require.Equal(t, "at-login", result.Credential.AccessToken)
	require.InDelta(t, time.Hour.Seconds(), result.Credential.ExpiresIn.Seconds(), 2)
}

// loginThroughBrowser runs Login and answers the authorization request the
// way a browser redirect would.
func loginThroughBrowser(t *testing.T, idp *fakeIdP, client *provider.OAuth2Client) *provider.LoginResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := client.Login(ctx, provider.LoginOptions{
		Announce: func(authURL string) {
			u, err := url.Parse(authURL)
			require.NoError(t, err)
			q := u.Query()
			idp.mu.Lock()
			idp.challenge = q.Get("code_challenge")
			idp.mu.Unlock()

			go func() {
				resp, err := http.Get(q.Get("redirect_uri") + "?code=the-code&state=" + url.QueryEscape(q.Get("state")))
				if err == nil {
					resp.Body.Close()
				}
			}()
		},
	})
	require.NoError(t, err)
	return result
}

func TestOAuth2Client_LoginWithoutRefreshToken(t *testing.T) {
	setup := func(t *testing.T, storedGrant string) (*fakeIdP, *store.InMemoryStore, *store.Records, *provider.OAuth2Client) {
		t.Helper()
		idp := newFakeIdP(t)
		raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
			"sub":   "u1",
			"email": "u1@example.com",
		}).SignedString([]byte("unchecked"))
		require.NoError(t, err)
		idp.mu.Lock()
		idp.idToken = raw
		idp.loginRefresh = ""
		idp.mu.Unlock()

		mem := store.NewInMemoryStore()
		records := store.NewRecords(mem, "")
		if storedGrant != "" {
			require.NoError(t, mem.Set(records.RefreshGrantKey(), storedGrant))
		}
		client, err := provider.NewOAuth2Client(context.Background(), provider.Settings{
			ClientID: testClientID,
			AuthURL:  idp.srv.URL + "/authorize",
			TokenURL: idp.srv.URL + "/token",
		}, records, provider.WithRetryMax(0))
		require.NoError(t, err)
		return idp, mem, records, client
	}

	t.Run("returns the exchanged credential", func(t *testing.T) {
		idp, _, _, client := setup(t, "")
		result := loginThroughBrowser(t, idp, client)

		require.False(t, result.HasGrant)
		requireLoginCredential(t, result)

		_, err := client.Refresh(context.Background(), provider.CredentialRequest{Hint: "u1@example.com"})
		require.ErrorIs(t, err, errors.ErrNoGrant)
	})

	t.Run("keeps the grant of the same account", func(t *testing.T) {
		idp, mem, records, client := setup(t, `{"refresh_token":"r-old","hint":"u1@example.com","sub":"u1"}`)
		result := loginThroughBrowser(t, idp, client)

		require.True(t, result.HasGrant)
		grant, err := mem.Get(records.RefreshGrantKey())
		require.NoError(t, err)
		require.Contains(t, grant, `"refresh_token":"r-old"`)
	})

	t.Run("drops the grant of another account", func(t *testing.T) {
		idp, mem, records, client := setup(t, `{"refresh_token":"r-other","hint":"other@example.com","sub":"other"}`)
		result := loginThroughBrowser(t, idp, client)

		require.False(t, result.HasGrant)
		require.False(t, client.HasGrant())
		_, err := mem.Get(records.RefreshGrantKey())
		require.True(t, store.IsNotFound(err))

		_, err = client.Refresh(context.Background(), provider.CredentialRequest{Hint: "u1@example.com"})
		require.ErrorIs(t, err, errors.ErrNoGrant)
		idp.mu.Lock()
		defer idp.mu.Unlock()
		require.Zero(t, idp.refreshCalls)
	})
}

func TestOAuth2Client_LoginDenied(t *testing.T) {
	idp := newFakeIdP(t)
	client, err := provider.NewOAuth2Client(context.Background(), provider.Settings{
		ClientID: testClientID,
		AuthURL:  idp.srv.URL + "/authorize",
		TokenURL: idp.srv.URL + "/token",
	}, store.NewRecords(store.NewInMemoryStore(), ""), provider.WithRetryMax(0))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = client.Login(ctx, provider.LoginOptions{
		Announce: func(authURL string) {
			u, _ := url.Parse(authURL)
			q := u.Query()
			go func() {
				resp, err := http.Get(q.Get("redirect_uri") + "?error=access_denied&state=" + url.QueryEscape(q.Get("state")))
				if err == nil {
					resp.Body.Close()
				}
			}()
		},
	})
	require.ErrorIs(t, err, errors.ErrProviderIssuance)
	require.Contains(t, err.Error(), "access_denied")
}
