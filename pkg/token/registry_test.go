package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []Entry {
	return []Entry{
		{Symbol: "xfi", Address: "0x0000000000000000000000000000000000dead", Decimals: 18, Native: true},
		{Symbol: "wxfi", Address: "0x0000000000000000000000000000000000beef", Decimals: 18, WrappedNative: true},
		{Symbol: "usdc", Address: "0x00000000000000000000000000000000000001", Decimals: 6},
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(sampleEntries())
	require.NoError(t, err)

	tok, ok := r.BySymbol("USDC")
	require.True(t, ok)
	assert.Equal(t, uint8(6), tok.Decimals)

	assert.True(t, r.IsNative("xfi"))
	assert.False(t, r.IsNative("wxfi"))
	assert.True(t, r.IsWrappedNative("wxfi"))
	assert.Equal(t, "WXFI", r.WrappedNative().Symbol)
}

func TestNewRegistry_UnknownSymbol(t *testing.T) {
	r, err := NewRegistry(sampleEntries())
	require.NoError(t, err)

	_, ok := r.BySymbol("NOPE")
	assert.False(t, ok)
}

func TestNewRegistry_DuplicateSymbol(t *testing.T) {
	entries := sampleEntries()
	entries = append(entries, Entry{Symbol: "USDC", Address: "0x0000000000000000000000000000000000aaaa"})
	_, err := NewRegistry(entries)
	assert.Error(t, err)
}

func TestNewRegistry_DuplicateAddress(t *testing.T) {
	entries := sampleEntries()
	entries = append(entries, Entry{Symbol: "FAKE", Address: "0x00000000000000000000000000000000000001"})
	_, err := NewRegistry(entries)
	assert.Error(t, err)
}

func TestNewRegistry_NoWrappedNative(t *testing.T) {
	_, err := NewRegistry([]Entry{
		{Symbol: "USDC", Address: "0x0000000000000000000000000000000000001", Decimals: 6},
	})
	assert.Error(t, err)
}

func TestNewRegistry_MultipleWrappedNative(t *testing.T) {
	entries := sampleEntries()
	entries = append(entries, Entry{Symbol: "WXFI2", Address: "0x0000000000000000000000000000000000cafe", WrappedNative: true})
	_, err := NewRegistry(entries)
	assert.Error(t, err)
}
