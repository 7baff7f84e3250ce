// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// dict.go - fixed token table mapping the recurring JSON keys of stored
// statistics payloads to short numeric codes, plus the lazily built
// process-wide default table.

// Package dict provides the immutable token/code table used by the payload
// substitution codec.
package dict

import "sync"

// Base is the code assigned to the first token of every table.
const Base = 1000

// Dictionary is a bijection between tokens and codes. Codes are Base+index in
// insertion order. A Dictionary is never mutated after Build returns, so it
// may be shared freely between goroutines.
type Dictionary struct {
	codes  map[string]int
	tokens []string // index i holds the token for code Base+i
}

// Build constructs a Dictionary from tokens. Empty strings and repeated
// tokens are skipped so that codes stay dense and unique.
func Build(tokens []string) *Dictionary {
	d := &Dictionary{
		codes:  make(map[string]int, len(tokens)),
		tokens: make([]string, 0, len(tokens)),
	}
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if _, dup := d.codes[tok]; dup {
			continue
		}
		d.codes[tok] = Base + len(d.tokens)
		d.tokens = append(d.tokens, tok)
	}
	return d
}

// Lookup returns the code assigned to token.
func (d *Dictionary) Lookup(token string) (int, bool) {
	code, ok := d.codes[token]
	return code, ok
}

// Reverse returns the token assigned to code.
func (d *Dictionary) Reverse(code int) (string, bool) {
	i := code - Base
	if i < 0 || i >= len(d.tokens) {
		return "", false
	}
	return d.tokens[i], true
}

// Len returns the number of assigned codes.
func (d *Dictionary) Len() int { return len(d.tokens) }

// Tokens returns a copy of the tokens in code order.
func (d *Dictionary) Tokens() []string {
	out := make([]string, len(d.tokens))
	copy(out, d.tokens)
	return out
}

var (
	defaultOnce sync.Once
	defaultDict *Dictionary
)

// Default returns the table built from DefaultTokens. It is constructed on
// first use and shared for the lifetime of the process.
func Default() *Dictionary {
	defaultOnce.Do(func() {
		defaultDict = Build(DefaultTokens)
	})
	return defaultDict
}
