package collector

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// SecretDecryptor turns a stored ciphertext into a plaintext secret. It is
// injected into the Collector so credential material can be encrypted at
// rest without the core ever handling key storage formats.
type SecretDecryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// AgeDecryptor decrypts base64-encoded age ciphertext with the X25519
// identities found in IdentityFile.
type AgeDecryptor struct {
	IdentityFile string
}

func (d *AgeDecryptor) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("ciphertext is not valid base64: %v", err)
	}

	idData, err := os.ReadFile(d.IdentityFile)
	if err != nil {
		return "", fmt.Errorf("reading identity file: %v", err)
	}
	identities, err := age.ParseIdentities(bytes.NewReader(idData))
	if err != nil {
		return "", fmt.Errorf("parsing identity file: %v", err)
	}

	r, err := age.Decrypt(bytes.NewReader(raw), identities...)
	if err != nil {
		return "", fmt.Errorf("decrypting secret: %v", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decrypting secret: %v", err)
	}
	return string(plaintext), nil
}
