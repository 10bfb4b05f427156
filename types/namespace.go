package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const namespacePrefix = "user-"

// NamespaceFor derives the vector index namespace of a user. The result only
// contains characters accepted as tenant names; ids that need rewriting get a
// hash suffix so two different ids never share a namespace.
func NamespaceFor(userID string) string {
	safe := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, userID)
	if safe == userID && len(safe) <= 48 {
		return namespacePrefix + safe
	}
	sum := sha256.Sum256([]byte(userID))
	if len(safe) > 32 {
		safe = safe[:32]
	}
	return namespacePrefix + safe + "-" + hex.EncodeToString(sum[:6])
}
