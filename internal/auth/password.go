package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params はargon2idの導出パラメータ。
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params は本番用のパラメータ。
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// PasswordVault はパスワードの一方向ハッシュ化と照合を行う。
// 生成するハッシュは "$argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>" 形式で、
// 照合時はハッシュに埋め込まれたパラメータで再導出する。
type PasswordVault struct {
	params Argon2Params
}

// NewPasswordVault はPasswordVaultを生成する。
func NewPasswordVault(params Argon2Params) *PasswordVault {
	return &PasswordVault{params: params}
}

// Hash はパスワードをargon2idでハッシュ化する。ソルトは呼び出し毎にランダムに生成する。
func (v *PasswordVault) Hash(password string) (string, error) {
	salt := make([]byte, v.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, v.params.Time, v.params.Memory, v.params.Threads, v.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		v.params.Memory, v.params.Time, v.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify はパスワードがハッシュと一致するかを返す。
// 不正な形式のハッシュはエラーではなくfalseとして扱う。
func (v *PasswordVault) Verify(password, encoded string) bool {
	params, salt, key, ok := decodeArgon2Hash(encoded)
	if !ok {
		return false
	}

	derived := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1
}

func decodeArgon2Hash(encoded string) (Argon2Params, []byte, []byte, bool) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Params{}, nil, nil, false
	}

	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return Argon2Params{}, nil, nil, false
	}
	if p.Memory == 0 || p.Time == 0 || p.Threads == 0 {
		return Argon2Params{}, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Argon2Params{}, nil, nil, false
	}
	key, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Argon2Params{}, nil, nil, false
	}

	return p, salt, key, true
}
