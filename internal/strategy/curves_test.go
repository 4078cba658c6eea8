package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbgrid/orb-agent/internal/orb"
)

func TestDefaultCurves(t *testing.T) {
	t.Parallel()

	curves := DefaultCurves()
	require.NoError(t, curves.Validate())

	t.Run("every profile resolves every motherload", func(t *testing.T) {
		t.Parallel()
		for profile := range curves.Profiles {
			for _, motherload := range []uint64{0, orb.OrbUnit, 200 * orb.OrbUnit, 1_000_000 * orb.OrbUnit} {
				rounds, err := curves.RoundsFor(profile, motherload)
				require.NoError(t, err)
				require.Positive(t, rounds)
			}
		}
	})

	t.Run("rounds shrink as the pot grows", func(t *testing.T) {
		t.Parallel()
		small, err := curves.RoundsFor(string(KindBalanced), 10*orb.OrbUnit)
		require.NoError(t, err)
		big, err := curves.RoundsFor(string(KindBalanced), 10_000*orb.OrbUnit)
		require.NoError(t, err)
		require.Less(t, big, small)
	})

	t.Run("unknown profile errors", func(t *testing.T) {
		t.Parallel()
		_, err := curves.RoundsFor("martingale", orb.OrbUnit)
		require.Error(t, err)
	})
}

func TestLoadCurves(t *testing.T) {
	t.Parallel()

	write := func(t *testing.T, body string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "curves.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	t.Run("loads a valid curve file", func(t *testing.T) {
		t.Parallel()
		path := write(t, `
version: test-1
profiles:
  balanced:
    - max_motherload_orb: 100
      rounds: 50
    - rounds: 20
`)
		curves, err := LoadCurves(path)
		require.NoError(t, err)
		require.Equal(t, "test-1", curves.Version)

		rounds, err := curves.RoundsFor("balanced", 50*orb.OrbUnit)
		require.NoError(t, err)
		require.Equal(t, uint64(50), rounds)

		rounds, err = curves.RoundsFor("balanced", 500*orb.OrbUnit)
		require.NoError(t, err)
		require.Equal(t, uint64(20), rounds)
	})

	t.Run("bucket bound is inclusive", func(t *testing.T) {
		t.Parallel()
		path := write(t, `
version: test-1
profiles:
  balanced:
    - max_motherload_orb: 100
      rounds: 50
    - rounds: 20
`)
		curves, err := LoadCurves(path)
		require.NoError(t, err)
		rounds, err := curves.RoundsFor("balanced", 100*orb.OrbUnit)
		require.NoError(t, err)
		require.Equal(t, uint64(50), rounds)
	})

	t.Run("rejects zero rounds", func(t *testing.T) {
		t.Parallel()
		path := write(t, `
version: test-1
profiles:
  balanced:
    - max_motherload_orb: 100
      rounds: 0
`)
		_, err := LoadCurves(path)
		require.Error(t, err)
		require.Contains(t, err.Error(), "zero rounds")
	})

	t.Run("rejects open-ended bucket before the last", func(t *testing.T) {
		t.Parallel()
		path := write(t, `
version: test-1
profiles:
  balanced:
    - rounds: 50
    - max_motherload_orb: 100
      rounds: 20
`)
		_, err := LoadCurves(path)
		require.Error(t, err)
	})

	t.Run("rejects out-of-order buckets", func(t *testing.T) {
		t.Parallel()
		path := write(t, `
version: test-1
profiles:
  balanced:
    - max_motherload_orb: 200
      rounds: 50
    - max_motherload_orb: 100
      rounds: 40
    - rounds: 20
`)
		_, err := LoadCurves(path)
		require.Error(t, err)
	})

	t.Run("missing file errors", func(t *testing.T) {
		t.Parallel()
		_, err := LoadCurves(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}
