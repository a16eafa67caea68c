package kv

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListEncodeDecodeRoundTrip(t *testing.T) {
	l := NewList()
	l.Add("rootfs-image", "1.0")
	l.Add("bootloader", "2.0")

	encoded := l.Encode()
	assert.Equal(t, "rootfs-image\x1f1.0\x1ebootloader\x1f2.0", encoded)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, l.Pairs(), decoded.Pairs())
}

func TestDecodeEmptyString(t *testing.T) {
	l, err := Decode("")
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
}

func TestDecodeMalformedRecord(t *testing.T) {
	_, err := Decode("rootfs-image-missing-separator")
	require.Error(t, err)
}

func TestDecodeMalformedSecondRecord(t *testing.T) {
	_, err := Decode("ok\x1fvalue\x1ebroken")
	require.Error(t, err)
}

func TestListAllowsDuplicatesButDedupsOnContains(t *testing.T) {
	l := NewList()
	l.Add("k", "v1")
	l.Add("k", "v2")
	assert.Equal(t, 2, l.Len())
	assert.False(t, l.Contains("k", "v1"))
	assert.True(t, l.Contains("k", "v2"))
}

func TestKeystoreSetGetLen(t *testing.T) {
	k := NewKeystore()
	k.Set("device_type", "dev-A")
	k.Set("artifact_name", "fw-1")
	k.Set("device_type", "dev-B") // last write wins, order unchanged

	assert.Equal(t, 2, k.Len())
	v, ok := k.Get("device_type")
	require.True(t, ok)
	assert.Equal(t, "dev-B", v)

	pairs := k.Pairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, "device_type", pairs[0].Key)
	assert.Equal(t, "artifact_name", pairs[1].Key)
}

func TestKeystoreJSONRoundTrip(t *testing.T) {
	k := NewKeystore()
	k.Set("name", "edge-01")
	k.Set("artifact_name", "fw-2")

	b, err := json.Marshal(k)
	require.NoError(t, err)

	var decoded Keystore
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, decoded.Len(), k.Len())
	for _, p := range k.Pairs() {
		v, ok := decoded.Get(p.Key)
		require.True(t, ok)
		assert.Equal(t, p.Value, v)
	}
}

func TestKeystoreCopyIsIndependent(t *testing.T) {
	k := NewKeystore()
	k.Set("a", "1")
	c := k.Copy()
	c.Set("a", "2")
	v, _ := k.Get("a")
	assert.Equal(t, "1", v)
	cv, _ := c.Get("a")
	assert.Equal(t, "2", cv)
}

func TestLastIndexSubstringFindsRightmostOccurrence(t *testing.T) {
	assert.Equal(t, 6, LastIndexSubstring("abcabcabc", "abc"))
	assert.Equal(t, 0, LastIndexSubstring("abc", "abc"))
}

func TestLastIndexSubstringNoMatch(t *testing.T) {
	assert.Equal(t, -1, LastIndexSubstring("abcabc", "xyz"))
}

func TestLastIndexSubstringEmptyNeedleMatchesAtEnd(t *testing.T) {
	assert.Equal(t, len("abc"), LastIndexSubstring("abc", ""))
}

func TestLastIndexSubstringOverlappingOccurrences(t *testing.T) {
	assert.Equal(t, 2, LastIndexSubstring("aaaa", "aa"))
}

func TestHasPrefixAndHasSuffix(t *testing.T) {
	assert.True(t, HasPrefix("rootfs-image.ext4", "rootfs-"))
	assert.False(t, HasPrefix("rootfs-image.ext4", "bootloader-"))
	assert.True(t, HasSuffix("rootfs-image.ext4", ".ext4"))
	assert.False(t, HasSuffix("rootfs-image.ext4", ".squashfs"))
}
