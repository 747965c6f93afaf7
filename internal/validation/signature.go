// signature.go verifies optional detached OpenPGP signatures shipped alongside
// module archives. When the deployment configures a trusted signing key,
// submitters can attach a `.sig` file and the registry proves the archive was
// produced by the holder of that key before accepting it.
package validation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// ParsePublicKey validates that the provided string is an ASCII-armored
// OpenPGP public key.
func ParsePublicKey(keyArmored string) error {
	if keyArmored == "" {
		return fmt.Errorf("public key cannot be empty")
	}

	if !strings.Contains(keyArmored, "-----BEGIN PGP PUBLIC KEY BLOCK-----") {
		return fmt.Errorf("invalid public key: missing BEGIN marker")
	}
	if !strings.Contains(keyArmored, "-----END PGP PUBLIC KEY BLOCK-----") {
		return fmt.Errorf("invalid public key: missing END marker")
	}

	if _, err := openpgp.ReadArmoredKeyRing(strings.NewReader(keyArmored)); err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	return nil
}

// VerifyDetachedSignature verifies a detached signature over archive bytes
// using the configured trusted key. The signature may be binary or
// ASCII-armored.
func VerifyDetachedSignature(publicKeyArmored string, data []byte, signature []byte) error {
	if publicKeyArmored == "" {
		return fmt.Errorf("public key cannot be empty")
	}
	if len(data) == 0 {
		return fmt.Errorf("data to verify cannot be empty")
	}
	if len(signature) == 0 {
		return fmt.Errorf("signature cannot be empty")
	}

	keyring, err := openpgp.ReadArmoredKeyRing(strings.NewReader(publicKeyArmored))
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	decodedSig := signature
	if block, err := armor.Decode(bytes.NewReader(signature)); err == nil {
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(block.Body); err != nil {
			return fmt.Errorf("failed to read armored signature: %w", err)
		}
		decodedSig = buf.Bytes()
	}

	_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(decodedSig), nil)
	if err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}

	return nil
}

// NormalizePublicKey canonicalizes line endings and surrounding whitespace so
// keys pasted from different platforms compare and parse consistently.
func NormalizePublicKey(key string) string {
	key = strings.ReplaceAll(key, "\r\n", "\n")
	key = strings.TrimSpace(key)
	if !strings.HasSuffix(key, "\n") {
		key += "\n"
	}
	return key
}
