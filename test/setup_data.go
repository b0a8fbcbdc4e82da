package test

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTestFile creates a file with n random bytes and returns its path and
// content hash.
func writeTestFile(t *testing.T, n int) (path, hash string) {
	t.Helper()

	content := make([]byte, n)
	_, err := rand.Read(content)
	require.NoError(t, err)

	path = filepath.Join(t.TempDir(), "resource.bin")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	sum := sha256.Sum256(content)
	return path, hex.EncodeToString(sum[:])
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
