package order

import (
	"bytes"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderNumberPattern = regexp.MustCompile(`^ORDER-\d+-[0-9a-z]{9}$`)

func TestNumberGenerator_Format(t *testing.T) {
	g := NewNumberGenerator()
	g.now = func() time.Time { return time.UnixMilli(1700000000123) }
	g.random = bytes.NewReader([]byte{0, 1, 10, 35, 36, 71, 255, 100, 200})

	n, err := g.Next()
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1700000000123-01az0z3sk", n)
}

func TestNumberGenerator_Distinct(t *testing.T) {
	g := NewNumberGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		n, err := g.Next()
		require.NoError(t, err)
		assert.Regexp(t, orderNumberPattern, n)
		assert.False(t, seen[n])
		seen[n] = true
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestNumberGenerator_RandomFailure(t *testing.T) {
	g := NewNumberGenerator()
	g.random = failingReader{}

	_, err := g.Next()
	assert.Error(t, err)
}
