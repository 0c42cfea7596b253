package artifact

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// Sha256Path computes the base64-encoded sha256 digest of a file's content.
func Sha256Path(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing artifact %s: %w", path, err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("hashing artifact %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(hash.Sum(nil)), nil
}
