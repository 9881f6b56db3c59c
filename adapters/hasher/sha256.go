package hasher

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/satriahrh/cocoa-fruit/chatrelay/domain"
)

// New returns a domain.Hasher backed by SHA-256. The salt is mixed in before
// the data so digests of the same token differ between deployments.
func New(salt string) domain.Hasher { return sha256Hasher{salt: []byte(salt)} }

type sha256Hasher struct {
	salt []byte
}

func (h sha256Hasher) Hash(data []byte) string {
	sum := sha256.New()
	sum.Write(h.salt)
	sum.Write(data)
	return hex.EncodeToString(sum.Sum(nil))
}
