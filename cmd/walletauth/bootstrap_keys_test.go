package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeKey(t *testing.T, curve elliptic.Curve) (string, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), 0o600))
	return path, key
}

func TestLoadSigningKey(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path, want := writeKey(t, elliptic.P256())
		key, err := loadSigningKey(path, zap.NewNop())
		require.NoError(t, err)
		assert.True(t, want.Equal(key))
	})

	t.Run("ephemeral", func(t *testing.T) {
		key, err := loadSigningKey("", zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, elliptic.P256(), key.Curve)
	})

	t.Run("wrong curve", func(t *testing.T) {
		path, _ := writeKey(t, elliptic.P384())
		_, err := loadSigningKey(path, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadSigningKey(filepath.Join(t.TempDir(), "absent.pem"), zap.NewNop())
		assert.Error(t, err)
	})
}
