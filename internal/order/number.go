package order

import (
	"crypto/rand"
	"fmt"
	"io"
	"strconv"
	"time"
)

const suffixLen = 9

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NumberGenerator produces ORDER-<unix millis>-<9 base36 chars> identifiers.
// They are unique in practice, not guaranteed.
type NumberGenerator struct {
	now    func() time.Time
	random io.Reader
}

func NewNumberGenerator() *NumberGenerator {
	return &NumberGenerator{now: time.Now, random: rand.Reader}
}

func (g *NumberGenerator) Next() (string, error) {
	buf := make([]byte, suffixLen)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	for i, b := range buf {
		buf[i] = base36[int(b)%len(base36)]
	}
	return "ORDER-" + strconv.FormatInt(g.now().UnixMilli(), 10) + "-" + string(buf), nil
}
