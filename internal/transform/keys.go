package transform

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// nullKeyPart encodes a null column inside a surrogate key so that
// (nil, "a") and ("a", nil) hash differently from ("a", "a").
const nullKeyPart = "_surrogate_key_null_"

// SurrogateKey derives a stable 32-character identifier from an ordered
// list of column values. Equal inputs always produce equal keys, which is
// what makes reruns over unchanged input reproduce identical tables. The
// key is a content hash, not a cryptographic guarantee of uniqueness;
// at warehouse scale collisions are treated as impossible.
func SurrogateKey(values ...*string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			parts[i] = nullKeyPart
		} else {
			parts[i] = *v
		}
	}
	sum := md5.Sum([]byte(strings.Join(parts, "-")))
	return hex.EncodeToString(sum[:])
}

// MessageKey is the surrogate key of a message, derived from the message
// identifier and its normalized channel name.
func MessageKey(messageID int64, channelName string) string {
	id := strconv.FormatInt(messageID, 10)
	name := NormalizeChannelName(channelName)
	return SurrogateKey(&id, &name)
}

// ChannelKey is the surrogate key of a channel, derived from the
// normalized channel name alone.
func ChannelKey(channelName string) string {
	name := NormalizeChannelName(channelName)
	return SurrogateKey(&name)
}

// NormalizeChannelName lower-cases and trims a raw channel name.
func NormalizeChannelName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
