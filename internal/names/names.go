// Package names generates display names and ticker symbols for deployed tokens.
package names

import (
	"math/rand/v2"
	"strings"
)

var adjectives = []string{
	"Amber", "Arctic", "Bold", "Brisk", "Cobalt", "Crimson", "Dusty", "Electric",
	"Emerald", "Feral", "Gilded", "Hollow", "Iron", "Jade", "Lunar", "Mellow",
	"Midnight", "Nimble", "Obsidian", "Quiet", "Rapid", "Rusty", "Silent", "Solar",
	"Stormy", "Velvet", "Wild", "Zephyr",
}

var nouns = []string{
	"Badger", "Beacon", "Canyon", "Comet", "Condor", "Delta", "Falcon", "Ferret",
	"Glacier", "Harbor", "Heron", "Jaguar", "Lantern", "Lynx", "Meadow", "Nebula",
	"Otter", "Pebble", "Quasar", "Raven", "Summit", "Tiger", "Walrus", "Willow",
}

// Token is a token display name with its ticker symbol.
type Token struct {
	Name   string
	Symbol string
}

// Generator produces token names from a seeded source.
type Generator struct {
	rng *rand.Rand
}

// New returns a Generator. The same seed always yields the same sequence.
func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Next returns the next token name.
func (g *Generator) Next() Token {
	adj := adjectives[g.rng.IntN(len(adjectives))]
	noun := nouns[g.rng.IntN(len(nouns))]
	return Token{
		Name:   adj + " " + noun,
		Symbol: strings.ToUpper(adj[:1] + noun[:3]),
	}
}

// Pair returns two tokens with distinct symbols.
func (g *Generator) Pair() (Token, Token) {
	a := g.Next()
	b := g.Next()
	for b.Symbol == a.Symbol {
		b = g.Next()
	}
	return a, b
}
