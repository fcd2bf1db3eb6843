package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ConfirmationMaxAge は確認トークンの既定の有効期間。
const ConfirmationMaxAge = 3600 * time.Second

// confirmationClaims は確認トークンのペイロード。
// 有効期限はexpではなく検証時に渡されるmaxAgeとiatで判定する。
type confirmationClaims struct {
	Email    string           `json:"email"`
	IssuedAt *jwt.NumericDate `json:"iat"`
}

func (c confirmationClaims) GetExpirationTime() (*jwt.NumericDate, error) { return nil, nil }
func (c confirmationClaims) GetIssuedAt() (*jwt.NumericDate, error) { return c.IssuedAt, nil }
func (c confirmationClaims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c confirmationClaims) GetIssuer() (string, error) { return "", nil }
func (c confirmationClaims) GetSubject() (string, error) { return "", nil }
func (c confirmationClaims) GetAudience() (jwt.ClaimStrings, error) { return nil, nil }

// TokenSigner はメールアドレス確認用の署名付きトークンを発行・検証する。
// トークンはサーバー側に保存しない。
type TokenSigner struct {
	secret []byte
	now    func() time.Time
}

// NewTokenSigner はTokenSignerを生成する。secretはサーバーのSECRET_KEY。
func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), now: time.Now}
}

// WithClock は時刻取得関数を差し替えたTokenSignerを返す。
func (s *TokenSigner) WithClock(now func() time.Time) *TokenSigner {
	return &TokenSigner{secret: s.secret, now: now}
}

// Issue はメールアドレスを埋め込んだHS256トークンを発行する。
// JWTのコンパクト形式はURLセーフなのでそのままリンクに埋め込める。
func (s *TokenSigner) Issue(email string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, confirmationClaims{
		Email:    email,
		IssuedAt: jwt.NewNumericDate(s.now()),
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign confirmation token: %w", err)
	}
	return signed, nil
}

// Verify は署名と発行時刻を検証し、埋め込まれたメールアドレスを返す。
// 署名不正・形式不正・期限切れはいずれも ("", false) となり区別しない。
func (s *TokenSigner) Verify(token string, maxAge time.Duration) (string, bool) {
	claims := &confirmationClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return "", false
	}

	if claims.IssuedAt == nil || claims.Email == "" {
		return "", false
	}
	age := s.now().Sub(claims.IssuedAt.Time)
	if age < 0 || age > maxAge {
		return "", false
	}

	return claims.Email, true
}
