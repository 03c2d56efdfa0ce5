package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func accessToken(t *testing.T, issuer, subject string, notBefore, expiry time.Time) jwt.Token {
	t.Helper()
	token, err := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{"khata-clients"}).
		Subject(subject).
		IssuedAt(notBefore).
		NotBefore(notBefore).
		Expiration(expiry).
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	return token
}

func TestTokenValidator(t *testing.T) {
	now := time.Now()
	v := TokenValidator{
		Issuer:         "khata-api",
		Audience:       "khata-clients",
		ClockSkew:      time.Second,
		Algorithm:      jwa.HS256,
		RequireSubject: true,
	}

	cases := []struct {
		name    string
		token   jwt.Token
		alg     jwa.SignatureAlgorithm
		wantErr bool
	}{
		{
			"valid",
			accessToken(t, "khata-api", "user-1", now, now.Add(time.Minute)),
			jwa.HS256,
			false,
		},
		{
			"issuer mismatch",
			accessToken(t, "someone-else", "user-1", now, now.Add(time.Minute)),
			jwa.HS256,
			true,
		},
		{
			"expired",
			accessToken(t, "khata-api", "user-1", now.Add(-2*time.Hour), now.Add(-time.Minute)),
			jwa.HS256,
			true,
		},
		{
			"not yet valid",
			accessToken(t, "khata-api", "user-1", now.Add(5*time.Minute), now.Add(10*time.Minute)),
			jwa.HS256,
			true,
		},
		{
			"algorithm mismatch",
			accessToken(t, "khata-api", "user-1", now, now.Add(time.Minute)),
			jwa.RS256,
			true,
		},
		{
			"missing subject",
			accessToken(t, "khata-api", "", now, now.Add(time.Minute)),
			jwa.HS256,
			true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.token, tc.alg, now)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation to fail")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("validate: %v", err)
			}
		})
	}
}

func TestTokenValidatorRejectsNilToken(t *testing.T) {
	if err := (TokenValidator{}).Validate(nil, jwa.HS256, time.Now()); err == nil {
		t.Fatal("expected error for nil token")
	}
}
