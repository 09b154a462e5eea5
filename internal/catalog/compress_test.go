package catalog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressVariantsDropsVariantsThatDontShrink(t *testing.T) {
	tiny := []byte("x")
	variants := compressVariants(tiny)
	for _, v := range variants {
		require.Less(t, len(v.Data), len(tiny), "variant %s should only be kept when it is smaller than identity", v.Codec)
	}
}

func TestCompressVariantsProduceAllThreeCodecsForCompressibleInput(t *testing.T) {
	buf := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 200))
	variants := compressVariants(buf)

	codecs := map[string]bool{}
	for _, v := range variants {
		codecs[v.Codec] = true
		require.NotEmpty(t, v.Data)
		require.Less(t, len(v.Data), len(buf))
	}
	require.True(t, codecs["deflate"])
	require.True(t, codecs["br"])
	require.True(t, codecs["zstd"])
}

func TestSmallerOrDrop(t *testing.T) {
	small, ok := smallerOrDrop(bytes.Repeat([]byte{1}, 2), bytes.Repeat([]byte{1}, 10))
	require.True(t, ok)
	require.Len(t, small, 2)

	_, ok = smallerOrDrop(bytes.Repeat([]byte{1}, 10), bytes.Repeat([]byte{1}, 2))
	require.False(t, ok)
}
