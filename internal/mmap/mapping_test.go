package mmap

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.bin")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestMapAnon(t *testing.T) {
	m, err := MapAnon(4096)
	require.NoError(t, err)
	defer m.Close()

	data := m.Bytes()
	require.Len(t, data, 4096)
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d not zero", i)
		}
	}

	data[10] = 0xAB
	assert.Equal(t, byte(0xAB), m.Bytes()[10])
	assert.NotZero(t, m.Addr())

	_, err = MapAnon(0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestOpen_ReadOnly(t *testing.T) {
	content := []byte("Hello, Mmap!")
	m, err := Open(writeFile(t, content))
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, len(content), m.Size())
	assert.Equal(t, content, m.Bytes())

	buf := make([]byte, 5)
	n, err := m.ReadAt(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "Mmap!", string(buf))

	n, err = m.ReadAt(make([]byte, 10), 100)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	_, err = m.ReadAt(buf, -1)
	assert.Equal(t, ErrInvalidOffset, err)
}

func TestOpenPrivate_WritesStayPrivate(t *testing.T) {
	content := []byte("shared cache bytes")
	path := writeFile(t, content)

	m, err := OpenPrivate(path)
	require.NoError(t, err)

	m.Bytes()[0] = 'S'
	assert.Equal(t, byte('S'), m.Bytes()[0])
	require.NoError(t, m.Close())

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, onDisk)
}

func TestMapping_EmptyFileAndClose(t *testing.T) {
	m, err := Open(writeFile(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Size())
	assert.Zero(t, m.Addr())
	assert.Nil(t, m.Bytes())

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Advise(AccessRandom), ErrClosed)

	_, err = m.ReadAt(make([]byte, 1), 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMapping_Advise(t *testing.T) {
	m, err := MapAnon(1 << 16)
	require.NoError(t, err)
	defer m.Close()

	for _, p := range []AccessPattern{AccessDefault, AccessSequential, AccessRandom, AccessWillNeed} {
		assert.NoError(t, m.Advise(p))
	}
}
