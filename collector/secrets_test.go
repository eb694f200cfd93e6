package collector

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgeDecryptorRoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	idFile := filepath.Join(t.TempDir(), "identity.txt")
	require.NoError(t, os.WriteFile(idFile, []byte(identity.String()+"\n"), 0o600))

	var ciphertext bytes.Buffer
	w, err := age.Encrypt(&ciphertext, identity.Recipient())
	require.NoError(t, err)
	_, err = w.Write([]byte("c2VjcmV0LXNoYXJlZC1rZXk="))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	d := &AgeDecryptor{IdentityFile: idFile}
	plaintext, err := d.Decrypt(base64.StdEncoding.EncodeToString(ciphertext.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "c2VjcmV0LXNoYXJlZC1rZXk=", plaintext)
}

func TestAgeDecryptorErrors(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	idFile := filepath.Join(t.TempDir(), "identity.txt")
	require.NoError(t, os.WriteFile(idFile, []byte(identity.String()+"\n"), 0o600))

	d := &AgeDecryptor{IdentityFile: idFile}

	_, err = d.Decrypt("%%% not base64 %%%")
	assert.Error(t, err)

	_, err = d.Decrypt(base64.StdEncoding.EncodeToString([]byte("not an age file")))
	assert.Error(t, err)

	// Ciphertext for a different identity cannot be decrypted.
	other, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	var ciphertext bytes.Buffer
	w, err := age.Encrypt(&ciphertext, other.Recipient())
	require.NoError(t, err)
	_, err = w.Write([]byte("secret"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = d.Decrypt(base64.StdEncoding.EncodeToString(ciphertext.Bytes()))
	assert.Error(t, err)

	d = &AgeDecryptor{IdentityFile: filepath.Join(t.TempDir(), "missing.txt")}
	_, err = d.Decrypt(base64.StdEncoding.EncodeToString(ciphertext.Bytes()))
	assert.Error(t, err)
}
