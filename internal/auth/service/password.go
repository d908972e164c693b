package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	autherror "github.com/pantryledger/auth-service/internal/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	AlgoBcrypt   = "bcrypt"
	AlgoArgon2id = "argon2id"

	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 2
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// CredentialVerifier checks presented secrets against stored hashes. The
// hashing algorithm for new hashes is a configuration value; verification
// dispatches on the stored hash's prefix, so accounts hashed under either
// algorithm keep working during a migration.
type CredentialVerifier struct {
	algo       string
	bcryptCost int
	dummyHash  string
}

func NewCredentialVerifier(algo string, bcryptCost int) (*CredentialVerifier, error) {
	if algo != AlgoBcrypt && algo != AlgoArgon2id {
		return nil, fmt.Errorf("unsupported password hash algorithm: %s", algo)
	}
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost out of range: %d", bcryptCost)
	}

	v := &CredentialVerifier{algo: algo, bcryptCost: bcryptCost}

	// Hash of a random throwaway secret, used to burn comparable cost when
	// the presented email resolves to no account.
	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return nil, fmt.Errorf("failed to seed dummy hash: %w", err)
	}
	dummy, err := v.Hash(base64.RawStdEncoding.EncodeToString(random))
	if err != nil {
		return nil, err
	}
	v.dummyHash = dummy

	return v, nil
}

// Hash derives a stored hash for secret using the configured algorithm.
func (v *CredentialVerifier) Hash(secret string) (string, error) {
	if v.algo == AlgoArgon2id {
		salt := make([]byte, argon2SaltLen)
		if _, err := rand.Read(salt); err != nil {
			return "", err
		}
		key := argon2.IDKey([]byte(secret), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
		return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
			argon2.Version, argon2Memory, argon2Time, argon2Threads,
			base64.RawStdEncoding.EncodeToString(salt),
			base64.RawStdEncoding.EncodeToString(key)), nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), v.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify compares secret against storedHash. It returns
// ErrInvalidCredentials on mismatch or on a malformed stored hash; the
// caller cannot distinguish the two.
func (v *CredentialVerifier) Verify(storedHash, secret string) error {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return verifyArgon2id(storedHash, secret)
	}
	if bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(secret)) != nil {
		return autherror.ErrInvalidCredentials
	}
	return nil
}

// DummyVerify burns hashing cost comparable to a real verification so that
// unknown-account and wrong-secret paths are not distinguishable by timing.
func (v *CredentialVerifier) DummyVerify(secret string) {
	_ = v.Verify(v.dummyHash, secret)
}

func verifyArgon2id(storedHash, secret string) error {
	parts := strings.Split(storedHash, "$")
	if len(parts) != 6 {
		return autherror.ErrInvalidCredentials
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return autherror.ErrInvalidCredentials
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return autherror.ErrInvalidCredentials
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return autherror.ErrInvalidCredentials
	}

	got := argon2.IDKey([]byte(secret), salt, iterations, memory, threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return autherror.ErrInvalidCredentials
	}
	return nil
}
