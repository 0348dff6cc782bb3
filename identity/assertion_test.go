package identity_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer   = "https://accounts.example.com"
	testClientID = "client-123.apps.example.com"
)

func signedToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("not-checked"))
	require.NoError(t, err)
	return raw
}

func TestDecode(t *testing.T) {
	t.Run("full claim set", func(t *testing.T) {
		raw := signedToken(t, jwtlib.MapClaims{
			"iss":            testIssuer,
			"nbf":            1700000000,
			"aud":            testClientID,
			"sub":            "u1",
			"hd":             "example.com",
			"email":          "u1@example.com",
			"email_verified": true,
			"azp":            testClientID,
			"name":           "User One",
			"picture":        "https://example.com/u1.png",
			"given_name":     "User",
			"family_name":    "One",
			"iat":            1700000010,
			"exp":            1700003610,
			"jti":            "abc123",
		})

		a, err := identity.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, &identity.Assertion{
			Issuer:          testIssuer,
			NotBefore:       "1700000000",
			Audience:        testClientID,
			Subject:         "u1",
			HostedDomain:    "example.com",
			Email:           "u1@example.com",
			EmailVerified:   true,
			AuthorizedParty: testClientID,
			Name:            "User One",
			Picture:         "https://example.com/u1.png",
			GivenName:       "User",
			FamilyName:      "One",
			IssuedAt:        "1700000010",
			ExpiresAt:       "1700003610",
			TokenID:         "abc123",
		}, a)
		require.Equal(t, time.Unix(1700003610, 0), a.Expiry())
		require.Equal(t, time.Unix(1700000010, 0), a.Issued())
	})

	t.Run("audience array and string email_verified", func(t *testing.T) {
		raw := signedToken(t, jwtlib.MapClaims{
			"sub":            "u2",
			"aud":            []string{"a", "b"},
			"email_verified": "true",
		})

		a, err := identity.Decode(raw)
		require.NoError(t, err)
		require.Equal(t, "a b", a.Audience)
		require.True(t, a.EmailVerified)
		require.True(t, a.Expiry().IsZero())
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u1"`))
		for name, raw := range map[string]string{
			"empty":          "   ",
			"one segment":    "abc",
			"two segments":   "abc.def",
			"bad base64":     "e30.!!!.sig",
			"truncated json": "eyJhbGciOiJIUzI1NiJ9." + payload + ".sig",
		} {
			t.Run(name, func(t *testing.T) {
				a, err := identity.Decode(raw)
				require.Nil(t, a)
				require.ErrorIs(t, err, errors.ErrInvalidAssertionFormat)
			})
		}
	})

	t.Run("rejects a token without subject", func(t *testing.T) {
		raw := signedToken(t, jwtlib.MapClaims{"email": "nobody@example.com"})
		_, err := identity.Decode(raw)
		require.ErrorIs(t, err, errors.ErrInvalidAssertionFormat)
	})
}

func TestAssertion_MarshalRoundTrip(t *testing.T) {
	in := &identity.Assertion{
		Subject:       "u1",
		Email:         "u1@x.com",
		EmailVerified: true,
		IssuedAt:      "1700000000",
		ExpiresAt:     "1700003600",
	}

	data, err := in.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "u1", raw["sub"])
	require.NotContains(t, raw, "hd")

	out, err := identity.Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = identity.Unmarshal([]byte("{not json"))
	require.ErrorIs(t, err, errors.ErrInvalidAssertionFormat)
}

func TestAssertion_Validate(t *testing.T) {
	require.NoError(t, (&identity.Assertion{Subject: "u1"}).Validate())
	require.NoError(t, (&identity.Assertion{Subject: "u1", NotBefore: "1700000000", IssuedAt: "1.7e9", ExpiresAt: "1700003600"}).Validate())

	tests := map[string]*identity.Assertion{
		"no subject":     {ExpiresAt: "1700003600"},
		"text expiry":    {Subject: "u1", ExpiresAt: "tomorrow"},
		"infinite iat":   {Subject: "u1", IssuedAt: "Inf"},
		"hex not before": {Subject: "u1", NotBefore: "0x1p-2"},
		"quoted expiry":  {Subject: "u1", ExpiresAt: `"1700003600"`},
	}
	for name, a := range tests {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, a.Validate(), errors.ErrInvalidAssertionFormat)
		})
	}

	t.Run("decode drops non-numeric date claims", func(t *testing.T) {
		a, err := identity.Decode(signedToken(t, jwtlib.MapClaims{"sub": "u1", "exp": "Inf", "iat": "1700000000"}))
		require.NoError(t, err)
		require.Empty(t, a.ExpiresAt)
		require.Equal(t, "1700000000", string(a.IssuedAt))

		_, err = a.Marshal()
		require.NoError(t, err)
	})
}

func TestAssertion_DisplayName(t *testing.T) {
	require.Equal(t, "Full Name", (&identity.Assertion{Name: "Full Name", Email: "e@x"}).DisplayName())
	require.Equal(t, "Given Family", (&identity.Assertion{GivenName: "Given", FamilyName: "Family"}).DisplayName())
	require.Equal(t, "e@x", (&identity.Assertion{Email: "e@x", Subject: "s"}).DisplayName())
	require.Equal(t, "s", (&identity.Assertion{Subject: "s"}).DisplayName())
}
