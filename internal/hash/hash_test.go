package hash

import (
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString_MatchesStdlibFNV1a(t *testing.T) {
	for _, s := range []string{"", "a", "ruleName", "?17", "acPostProcForPut"} {
		h := fnv.New64a()
		_, _ = h.Write([]byte(s))
		assert.Equal(t, h.Sum64(), String(s), s)
		assert.Equal(t, String(s), Bytes([]byte(s)), s)
	}
}

func TestCRC32C(t *testing.T) {
	data := []byte("123456789")
	// Standard CRC32C check value.
	assert.Equal(t, uint32(0xe3069283), CRC32C(data))

	h := NewCRC32C()
	_, _ = h.Write(data[:4])
	_, _ = h.Write(data[4:])
	assert.Equal(t, CRC32C(data), h.Sum32())
}
