package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestSurrogateKeyDeterministic(t *testing.T) {
	a := SurrogateKey(strPtr("123"), strPtr("tikvahpharma"))
	b := SurrogateKey(strPtr("123"), strPtr("tikvahpharma"))

	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestSurrogateKeyOrderAndNulls(t *testing.T) {
	// Swapped columns must hash differently.
	assert.NotEqual(t,
		SurrogateKey(strPtr("a"), strPtr("b")),
		SurrogateKey(strPtr("b"), strPtr("a")))

	// A null column is distinct from an empty string and from the
	// sentinel appearing as a literal value elsewhere.
	assert.NotEqual(t,
		SurrogateKey(nil, strPtr("a")),
		SurrogateKey(strPtr(""), strPtr("a")))
	assert.NotEqual(t,
		SurrogateKey(nil, strPtr("a")),
		SurrogateKey(strPtr("a"), nil))
}

func TestMessageKeyNormalizesChannel(t *testing.T) {
	assert.Equal(t, MessageKey(42, "TikvahPharma"), MessageKey(42, " tikvahpharma "))
	assert.NotEqual(t, MessageKey(42, "tikvahpharma"), MessageKey(43, "tikvahpharma"))
	assert.NotEqual(t, MessageKey(42, "tikvahpharma"), MessageKey(42, "chemed"))
}

func TestChannelKeyNormalizes(t *testing.T) {
	assert.Equal(t, ChannelKey("CheMed"), ChannelKey("chemed"))
	assert.NotEqual(t, ChannelKey("chemed"), ChannelKey("tikvahpharma"))
}

func TestNormalizeChannelName(t *testing.T) {
	assert.Equal(t, "tikvahpharma", NormalizeChannelName("  TikvahPharma "))
	assert.Equal(t, "", NormalizeChannelName("   "))
}
