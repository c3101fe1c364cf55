package sftp

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/smallbiznis/licensor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

func TestNewUploaderRequiresSettings(t *testing.T) {
	log := zap.NewNop()

	_, err := NewUploader(config.SFTPConfig{User: "u", Password: "p"}, log)
	assert.ErrorIs(t, err, ErrHostRequired)

	_, err = NewUploader(config.SFTPConfig{Host: "h", Password: "p"}, log)
	assert.ErrorIs(t, err, ErrUserRequired)

	_, err = NewUploader(config.SFTPConfig{Host: "h", User: "u"}, log)
	assert.ErrorIs(t, err, ErrNoAuthMethod)
}

func TestNewUploaderWithPrivateKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	u, err := NewUploader(config.SFTPConfig{Host: "partner.example.com", User: "licensor", PrivateKeyPath: keyPath}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "partner.example.com:22", u.addr)
	assert.Len(t, u.sshConfig.Auth, 1)
}

func TestNewUploaderRejectsMissingKnownHosts(t *testing.T) {
	_, err := NewUploader(config.SFTPConfig{
		Host:           "h",
		User:           "u",
		Password:       "p",
		KnownHostsPath: filepath.Join(t.TempDir(), "missing"),
	}, zap.NewNop())
	assert.Error(t, err)
}
