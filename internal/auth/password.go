package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

// WHY ARGON2ID?
// Password hashes must be slow AND memory-hard, so that cracking them on
// GPUs or ASICs is expensive. argon2id (winner of the Password Hashing
// Competition) is tuned by three knobs: time (passes), memory (KiB) and
// parallelism (threads).
//
// Hashes are stored in the PHC string format, which carries everything
// needed to verify them later:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<base64 salt>$<base64 key>
//
// So parameters can be raised later without invalidating existing hashes.

// ArgonParams are the argon2id cost parameters.
type ArgonParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgonParams follow the RFC 9106 "second recommended option"
// (64 MiB, 1 pass) with 4 lanes.
var DefaultArgonParams = ArgonParams{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
	SaltLen: 16,
}

var ErrInvalidHash = errors.New("auth: invalid password hash")

// PasswordService hashes and verifies passwords.
//
// It's a struct (not free functions) so tests can inject cheap parameters.
type PasswordService struct {
	params ArgonParams

	dummyOnce sync.Once
	dummyHash string
}

func NewPasswordService() *PasswordService {
	return &PasswordService{params: DefaultArgonParams}
}

// NewPasswordServiceWithParams lets other packages' tests use low-cost
// parameters (e.g. Memory: 64). Never use weak parameters in production.
func NewPasswordServiceWithParams(p ArgonParams) *PasswordService {
	return &PasswordService{params: p}
}

// Hash returns the PHC-encoded argon2id hash of plaintext with a fresh
// random salt.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	salt := make([]byte, p.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, p.params.Time, p.params.Memory, p.params.Threads, p.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.params.Memory,
		p.params.Time,
		p.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches the encoded hash, comparing in
// constant time. The parameters are read from the hash itself.
//
// An empty hash (accounts created through GitHub have no password) never
// matches, but still costs one hash computation so the response time does not
// reveal which accounts have a password.
func (p *PasswordService) Verify(encoded, plaintext string) (bool, error) {
	if encoded == "" {
		p.burn(plaintext)
		return false, nil
	}

	params, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	other := argon2.IDKey([]byte(plaintext), salt, params.Time, params.Memory, params.Threads, params.KeyLen)
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

// Burn spends the same work as a real verification. Login calls it when the
// email is unknown.
func (p *PasswordService) Burn(plaintext string) {
	p.burn(plaintext)
}

func (p *PasswordService) burn(plaintext string) {
	p.dummyOnce.Do(func() {
		p.dummyHash, _ = p.Hash("dummy password for timing equalization")
	})
	if params, salt, _, err := decodeHash(p.dummyHash); err == nil {
		argon2.IDKey([]byte(plaintext), salt, params.Time, params.Memory, params.Threads, params.KeyLen)
	}
}

func decodeHash(encoded string) (ArgonParams, []byte, []byte, error) {
	var params ArgonParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, fmt.Errorf("%w: version: %w", ErrInvalidHash, err)
	}
	if version != argon2.Version {
		return params, nil, nil, fmt.Errorf("%w: incompatible version %d", ErrInvalidHash, version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return params, nil, nil, fmt.Errorf("%w: params: %w", ErrInvalidHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: salt: %w", ErrInvalidHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: key: %w", ErrInvalidHash, err)
	}

	params.KeyLen = uint32(len(key))
	params.SaltLen = uint32(len(salt))
	return params, salt, key, nil
}
