package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// TokenLen is the number of hex characters in a project token.
const TokenLen = 16

// Token is the stable identifier derived from a project's absolute path.
// It keys every persisted record for that project (descriptor, pid record,
// log stream), so it must be identical across process restarts and reboots.
type Token string

func (t Token) String() string { return string(t) }

// ForPath derives the token for a project path. The path is made absolute
// and cleaned first so that relative invocations from inside the project
// resolve to the same token.
func ForPath(path string) (Token, error) {
	if path == "" {
		return "", fmt.Errorf("identity: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("identity: resolve %q: %w", path, err)
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return Token(hex.EncodeToString(sum[:])[:TokenLen]), nil
}
