// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// subst.go - versioned dictionary-substitution codec for JSON-shaped stats
// payloads. Known object keys are swapped for short "~code~" markers before
// a payload is stored, and swapped back after it is read.

// Package subst implements the stats payload substitution codec.
package subst

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/FiskLee/stattracker/internal/dict"
)

// CurrentVersion is the payload format version written by Compress.
const CurrentVersion = 1

// versionPrefix opens every compressed payload.
const versionPrefix = `{"~v~":`

// ErrVersionMismatch is reported (never returned) when a payload carries a
// format version other than the codec's.
var ErrVersionMismatch = errors.New("subst: payload version mismatch")

// VersionMismatchError carries the versions involved in a mismatch.
type VersionMismatchError struct {
	Found   int
	Current int
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("subst: payload version %d, codec version %d", e.Found, e.Current)
}

// Is reports whether target is ErrVersionMismatch.
func (e *VersionMismatchError) Is(target error) bool { return target == ErrVersionMismatch }

// Options configures a Codec.
type Options struct {
	// Disabled turns Compress into the identity function. Decompress still
	// expands marked payloads so stored data stays readable.
	Disabled bool
	// Version is stamped into compressed payloads. Zero means CurrentVersion.
	Version int
	// Textual substitutes every quoted occurrence of a token, keys and string
	// values alike. This is the byte-for-byte legacy format; the default only
	// substitutes object keys.
	Textual bool
	// OnWarning receives non-fatal diagnostics such as *VersionMismatchError.
	OnWarning func(err error)
}

// Codec compresses and decompresses payload text against a Dictionary.
// A Codec holds no mutable state and is safe for concurrent use.
type Codec struct {
	dict *dict.Dictionary
	opts Options

	// textual mode only
	compressor *strings.Replacer
	expander   *strings.Replacer
}

// New returns a Codec bound to d.
func New(d *dict.Dictionary, opts Options) *Codec {
	if opts.Version == 0 {
		opts.Version = CurrentVersion
	}
	c := &Codec{dict: d, opts: opts}
	if opts.Textual {
		toks := d.Tokens()
		fwd := make([]string, 0, 2*len(toks))
		rev := make([]string, 0, 2*len(toks))
		for i, tok := range toks {
			quoted := `"` + tok + `"`
			m := marker(dict.Base + i)
			fwd = append(fwd, quoted, m)
			rev = append(rev, m, quoted)
		}
		// A single leftmost pass yields the same text as one pass per token
		// for well-formed JSON: quoted tokens cannot overlap there.
		c.compressor = strings.NewReplacer(fwd...)
		c.expander = strings.NewReplacer(rev...)
	}
	return c
}

// Version returns the format version this codec writes.
func (c *Codec) Version() int { return c.opts.Version }

// Enabled reports whether the codec transforms payloads at all.
func (c *Codec) Enabled() bool { return !c.opts.Disabled }

// Compress substitutes dictionary tokens in src and injects the version
// marker as the first key. Input that is empty or not a JSON object is
// returned unchanged.
func (c *Codec) Compress(src string) string {
	if c.opts.Disabled || len(src) == 0 || src[0] != '{' {
		return src
	}
	body := src[1:]

	var b strings.Builder
	b.Grow(len(src) + len(versionPrefix) + 4)
	b.WriteString(versionPrefix)
	b.WriteString(strconv.Itoa(c.opts.Version))
	if !closesImmediately(body) {
		b.WriteByte(',')
	}
	if c.opts.Textual {
		b.WriteString(c.compressor.Replace(body))
	} else {
		c.substituteKeys(&b, body)
	}
	return b.String()
}

// Decompress reverses Compress. Payloads that do not start with the version
// marker, or whose version cannot be read, are returned unchanged.
func (c *Codec) Decompress(payload string) string {
	if !strings.HasPrefix(payload, versionPrefix) {
		return payload
	}
	rest := payload[len(versionPrefix):]
	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		return payload
	}
	version, err := strconv.Atoi(strings.TrimSpace(rest[:end]))
	if err != nil {
		return payload
	}
	if version != c.opts.Version {
		c.warn(&VersionMismatchError{Found: version, Current: c.opts.Version})
	}
	if rest[end] == ',' {
		rest = rest[end+1:]
	} else {
		rest = rest[end:]
	}

	var b strings.Builder
	b.Grow(len(payload))
	b.WriteByte('{')
	if c.opts.Textual {
		b.WriteString(c.expander.Replace(rest))
	} else {
		c.expandMarkers(&b, rest)
	}
	return b.String()
}

func (c *Codec) warn(err error) {
	if c.opts.OnWarning != nil {
		c.opts.OnWarning(err)
	}
}

// substituteKeys copies body into b, replacing quoted object keys found in
// the dictionary with their markers. String literals that already look like
// a marker get their leading '~' escaped so they survive Decompress intact.
func (c *Codec) substituteKeys(b *strings.Builder, body string) {
	for i := 0; i < len(body); {
		if body[i] != '"' {
			j := strings.IndexByte(body[i:], '"')
			if j < 0 {
				b.WriteString(body[i:])
				return
			}
			b.WriteString(body[i : i+j])
			i += j
			continue
		}
		end := stringEnd(body, i)
		if end < 0 {
			b.WriteString(body[i:])
			return
		}
		inner := body[i+1 : end]
		if isKey(body, end+1) {
			if code, ok := c.dict.Lookup(inner); ok {
				b.WriteString(marker(code))
				i = end + 1
				continue
			}
		}
		if looksLikeMarker(inner) {
			b.WriteString(`"\u007e`)
			b.WriteString(inner[1:])
			b.WriteByte('"')
		} else {
			b.WriteString(body[i : end+1])
		}
		i = end + 1
	}
}

// expandMarkers copies body into b, replacing every quoted marker with an
// assigned code by its quoted token. Unassigned markers are kept verbatim.
func (c *Codec) expandMarkers(b *strings.Builder, body string) {
	for i := 0; i < len(body); {
		if body[i] != '"' {
			j := strings.IndexByte(body[i:], '"')
			if j < 0 {
				b.WriteString(body[i:])
				return
			}
			b.WriteString(body[i : i+j])
			i += j
			continue
		}
		end := stringEnd(body, i)
		if end < 0 {
			b.WriteString(body[i:])
			return
		}
		if code, ok := markerCode(body[i+1 : end]); ok {
			if tok, ok := c.dict.Reverse(code); ok {
				b.WriteByte('"')
				b.WriteString(tok)
				b.WriteByte('"')
				i = end + 1
				continue
			}
		}
		b.WriteString(body[i : end+1])
		i = end + 1
	}
}

func marker(code int) string {
	return `"~` + strconv.Itoa(code) + `~"`
}

// markerCode parses the inside of a quoted "~N~" marker.
func markerCode(inner string) (int, bool) {
	if len(inner) < 3 || inner[0] != '~' || inner[len(inner)-1] != '~' {
		return 0, false
	}
	digits := inner[1 : len(inner)-1]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	code, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return code, true
}

func looksLikeMarker(inner string) bool {
	if inner == "~v~" {
		return true
	}
	_, ok := markerCode(inner)
	return ok
}

// stringEnd returns the index of the quote closing the string literal that
// opens at s[open], or -1 if the literal is unterminated.
func stringEnd(s string, open int) int {
	for k := open + 1; k < len(s); k++ {
		switch s[k] {
		case '\\':
			k++
		case '"':
			return k
		}
	}
	return -1
}

// isKey reports whether the next non-space byte at or after from is ':'.
func isKey(s string, from int) bool {
	for ; from < len(s); from++ {
		switch s[from] {
		case ' ', '\t', '\n', '\r':
			continue
		case ':':
			return true
		default:
			return false
		}
	}
	return false
}

// closesImmediately reports whether an object body is empty ("}" after
// optional whitespace).
func closesImmediately(body string) bool {
	t := strings.TrimLeft(body, " \t\n\r")
	return strings.HasPrefix(t, "}")
}
