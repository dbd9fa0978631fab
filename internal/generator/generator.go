// Package generator builds balanced password sets.
package generator

import (
	"math/rand"
	"strings"
	"time"

	"github.com/verte-zerg/keeglog/internal/model"
)

// Generator produces randomized passwords.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a Generator with a fixed seed.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate returns count upper-case passwords for mode. Every alphabet
// symbol is used at least floor(count*length/len(alphabet)) times; the
// remaining slots are drawn uniformly from the full alphabet.
func (g *Generator) Generate(mode model.PasswordMode, count int) []string {
	if count <= 0 || !mode.Valid() {
		return []string{}
	}
	alphabet := []rune(strings.ToUpper(mode.Alphabet()))
	length := mode.Length()
	pool := newPool(alphabet, count*length/len(alphabet))

	result := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var b strings.Builder
		for j := 0; j < length; j++ {
			var ch rune
			if pool.remaining > 0 {
				ch = pool.take(g.rnd.Intn(pool.remaining))
			} else {
				ch = alphabet[g.rnd.Intn(len(alphabet))]
			}
			b.WriteRune(ch)
		}
		result = append(result, b.String())
	}
	return result
}

// pool tracks the quota each symbol still owes before free choice kicks in.
type pool struct {
	symbols   []rune
	quota     []int
	remaining int
}

func newPool(alphabet []rune, perSymbol int) *pool {
	p := &pool{}
	if perSymbol <= 0 {
		return p
	}
	p.symbols = append([]rune(nil), alphabet...)
	p.quota = make([]int, len(alphabet))
	for i := range p.quota {
		p.quota[i] = perSymbol
	}
	p.remaining = perSymbol * len(alphabet)
	return p
}

// take consumes the quota unit at index unit, counted across all symbols.
func (p *pool) take(unit int) rune {
	idx := 0
	for unit >= p.quota[idx] {
		unit -= p.quota[idx]
		idx++
	}
	ch := p.symbols[idx]
	p.quota[idx]--
	p.remaining--
	if p.quota[idx] == 0 {
		p.symbols = append(p.symbols[:idx], p.symbols[idx+1:]...)
		p.quota = append(p.quota[:idx], p.quota[idx+1:]...)
	}
	return ch
}
