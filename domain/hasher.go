package domain

// Hasher derives opaque digests, e.g. the secret webhook path from the bot token.
type Hasher interface {
	Hash(data []byte) string
}
