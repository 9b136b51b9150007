package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeIdempotent(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	a, err := reg.Volume("composer-vendor")
	require.NoError(t, err)
	b, err := reg.Volume("composer-vendor")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.DirExists(t, a.Handle)
	assert.Equal(t, Shared, a.Mode)
}

func TestVolumePersistsAcrossRegistries(t *testing.T) {
	root := t.TempDir()

	first, err := NewRegistry(root).Volume("nix")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(first.Handle, "marker"), []byte("cached"), 0o644))

	second, err := NewRegistry(root).Volume("nix")
	require.NoError(t, err)
	assert.Equal(t, first.Handle, second.Handle)

	data, err := os.ReadFile(filepath.Join(second.Handle, "marker"))
	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))
}

func TestDistinctNamesDistinctHandles(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	a, err := reg.Volume("nix")
	require.NoError(t, err)
	b, err := reg.Volume("nix-etc")
	require.NoError(t, err)
	assert.NotEqual(t, a.Handle, b.Handle)
}

func TestVolumeConcurrentFirstAccess(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	const n = 32
	vols := make([]*Volume, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := reg.Volume("symfony-node_modules")
			assert.NoError(t, err)
			vols[i] = v
		}()
	}
	wg.Wait()

	for _, v := range vols {
		assert.Same(t, vols[0], v)
	}
	assert.Len(t, reg.List(), 1)
}

func TestInvalidNames(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	for _, name := range []string{"", "..", ".hidden", "a/b", "with space", "../escape"} {
		_, err := reg.Volume(name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestDeclare(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	require.NoError(t, reg.Declare("composer-vendor", Exclusive))
	v, err := reg.Volume("composer-vendor")
	require.NoError(t, err)
	assert.Equal(t, Exclusive, v.Mode)

	assert.NoError(t, reg.Declare("composer-vendor", Exclusive))
	assert.ErrorIs(t, reg.Declare("composer-vendor", Shared), ErrVolume)
	assert.ErrorIs(t, reg.Declare("bad/name", Shared), ErrInvalidName)
}

func TestExclusiveLock(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	require.NoError(t, reg.Declare("composer-vendor", Exclusive))
	v, err := reg.Volume("composer-vendor")
	require.NoError(t, err)

	v.Lock()
	acquired := make(chan struct{})
	go func() {
		v.Lock()
		close(acquired)
		v.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("exclusive volume locked twice")
	default:
	}

	v.Unlock()
	<-acquired
}

func TestSharedLockIsNoop(t *testing.T) {
	v, err := NewRegistry(t.TempDir()).Volume("nix")
	require.NoError(t, err)

	v.Lock()
	v.Lock()
	v.Unlock()
	v.Unlock()
}

func TestList(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	for _, name := range []string{"nix-etc", "composer-vendor", "nix"} {
		_, err := reg.Volume(name)
		require.NoError(t, err)
	}

	var names []string
	for _, v := range reg.List() {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"composer-vendor", "nix", "nix-etc"}, names)
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "shared", Shared.String())
	assert.Equal(t, "exclusive", Exclusive.String())
	assert.Equal(t, "Mode(7)", Mode(7).String())
}
