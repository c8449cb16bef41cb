package gmem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashU64_Deterministic(t *testing.T) {
	require.Equal(t, HashU64(42), HashU64(42))
	require.NotEqual(t, HashU64(42), HashU64(43))
}

func TestDecide_ClampsAtEdges(t *testing.T) {
	require.False(t, Decide(0, 12345))
	require.False(t, Decide(-1, 12345))
	require.True(t, Decide(1, 12345))
	require.True(t, Decide(2, 12345))
}

func TestDecide_PureAndDeterministic(t *testing.T) {
	require.Equal(t, Decide(0.5, 7), Decide(0.5, 7))
}

func TestDecide_HigherRateNeverLessLikely(t *testing.T) {
	// A sweep over many keys: the set of keys accepted at a lower rate
	// must be a subset of those accepted at a higher rate, since both
	// compare the same hash against a scaled threshold.
	for key := uint64(0); key < 2000; key++ {
		if Decide(0.3, key) {
			require.True(t, Decide(0.8, key), "key=%d", key)
		}
	}
}

func TestBankFor_AlwaysInRange(t *testing.T) {
	for line := uint64(0); line < 500; line++ {
		b := BankFor(line, 4, 0xabc)
		require.Less(t, b, uint64(4))
	}
}

func TestBankFor_ZeroBanksReturnsZero(t *testing.T) {
	require.Equal(t, uint64(0), BankFor(10, 0, 1))
}

func TestLineAddr_ReturnsIndexOfContainingLine(t *testing.T) {
	require.Equal(t, uint64(2), LineAddr(150, 64))
	require.Equal(t, uint64(0), LineAddr(10, 64))
}

func TestPolicyConfig_IsFlushMMIO_StridedWindows(t *testing.T) {
	cfg := PolicyConfig{L0FlushMMIOBase: 0x100, L0FlushMMIOStride: 0x100, L0FlushMMIOSize: 0x10}
	require.True(t, cfg.IsFlushMMIO(0x100))
	require.True(t, cfg.IsFlushMMIO(0x10F))
	require.False(t, cfg.IsFlushMMIO(0x110))
	require.True(t, cfg.IsFlushMMIO(0x200))
	require.False(t, cfg.IsFlushMMIO(0x0FF))
}
