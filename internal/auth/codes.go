package auth

import (
	"crypto/rand"
	"io"
	"math/big"
	"time"
)

const defaultCodeLength = 6

var ten = big.NewInt(10)

// CodeGenerator issues numeric one-time codes and their expiry times.
type CodeGenerator struct {
	length int
	ttl    time.Duration
	clock  Clock
	source io.Reader
}

// NewCodeGenerator returns a generator producing codes of length digits that
// stay valid for ttl.
func NewCodeGenerator(length int, ttl time.Duration, clock Clock) *CodeGenerator {
	if length <= 0 {
		length = defaultCodeLength
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &CodeGenerator{
		length: length,
		ttl:    ttl,
		clock:  clock,
		source: rand.Reader,
	}
}

// Generate returns a fixed-length string of uniformly distributed digits.
func (g *CodeGenerator) Generate() (string, error) {
	return GenerateCode(g.source, g.length)
}

// Expiration returns now+ttl in UTC.
func (g *CodeGenerator) Expiration() time.Time {
	return g.clock.Now().UTC().Add(g.ttl)
}

// GenerateCode reads length random digits from source.
func GenerateCode(source io.Reader, length int) (string, error) {
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(source, ten)
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}
