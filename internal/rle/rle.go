// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// rle.go - run-length codec for flat integer and character streams such as
// heatmap buffers. Runs are capped at 255 so every pair fits a byte-sized
// counter; longer runs are split.

// Package rle implements run-length encoding of integer sequences and its
// tagged string form.
package rle

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxRun is the longest run a single pair may describe.
const MaxRun = 255

// Marker prefixes strings produced by EncodeString from valid UTF-8.
const Marker = "RLE1:"

// ByteMarker prefixes strings EncodeString produced from raw bytes.
const ByteMarker = "RLE1b:"

const delimiter = ","

// ErrMalformedStream is returned when an encoded stream cannot be decoded.
var ErrMalformedStream = errors.New("rle: malformed stream")

// Run is one (length, value) pair.
type Run[T comparable] struct {
	Len   int
	Value T
}

// EncodeRuns collapses seq into runs of at most MaxRun identical values.
func EncodeRuns[T comparable](seq []T) []Run[T] {
	if len(seq) == 0 {
		return nil
	}
	runs := make([]Run[T], 0, 8)
	cur := Run[T]{Len: 1, Value: seq[0]}
	for _, v := range seq[1:] {
		if v == cur.Value && cur.Len < MaxRun {
			cur.Len++
			continue
		}
		runs = append(runs, cur)
		cur = Run[T]{Len: 1, Value: v}
	}
	return append(runs, cur)
}

// DecodeRuns expands runs back into the original sequence. A run length
// outside [1, MaxRun] yields ErrMalformedStream and an empty sequence.
func DecodeRuns[T comparable](runs []Run[T]) ([]T, error) {
	total := 0
	for _, r := range runs {
		if r.Len < 1 || r.Len > MaxRun {
			return []T{}, ErrMalformedStream
		}
		total += r.Len
	}
	out := make([]T, 0, total)
	for _, r := range runs {
		for i := 0; i < r.Len; i++ {
			out = append(out, r.Value)
		}
	}
	return out, nil
}

// Encode returns seq as flattened [run, value, run, value, ...] pairs.
func Encode(seq []int) []int {
	runs := EncodeRuns(seq)
	out := make([]int, 0, 2*len(runs))
	for _, r := range runs {
		out = append(out, r.Len, r.Value)
	}
	return out
}

// Decode expands flattened pairs. Odd-length input or an invalid run length
// returns an empty sequence and ErrMalformedStream.
func Decode(encoded []int) ([]int, error) {
	if len(encoded)%2 != 0 {
		return []int{}, ErrMalformedStream
	}
	runs := make([]Run[int], 0, len(encoded)/2)
	for i := 0; i < len(encoded); i += 2 {
		runs = append(runs, Run[int]{Len: encoded[i], Value: encoded[i+1]})
	}
	return DecodeRuns(runs)
}

// EncodeString run-length encodes the code points of s and renders the
// pairs as Marker followed by comma-separated decimals. Input that is not
// valid UTF-8 is encoded byte by byte under ByteMarker instead. The empty
// string encodes to itself.
func EncodeString(s string) string {
	if s == "" {
		return ""
	}
	ords := make([]int, 0, len(s))
	marker := Marker
	if utf8.ValidString(s) {
		for _, r := range s {
			ords = append(ords, int(r))
		}
	} else {
		marker = ByteMarker
		for i := 0; i < len(s); i++ {
			ords = append(ords, int(s[i]))
		}
	}
	pairs := Encode(ords)

	var b strings.Builder
	b.Grow(len(marker) + 4*len(pairs))
	b.WriteString(marker)
	for i, n := range pairs {
		if i > 0 {
			b.WriteString(delimiter)
		}
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// DecodeString reverses EncodeString. Input without Marker or ByteMarker is
// returned unchanged; a marked but undecodable body returns "" and
// ErrMalformedStream. Surrogate and out-of-range code points are malformed.
func DecodeString(s string) (string, error) {
	switch {
	case strings.HasPrefix(s, ByteMarker):
		ords, err := decodeBody(s[len(ByteMarker):])
		if err != nil {
			return "", err
		}
		buf := make([]byte, len(ords))
		for i, o := range ords {
			if o < 0 || o > 0xFF {
				return "", ErrMalformedStream
			}
			buf[i] = byte(o)
		}
		return string(buf), nil
	case strings.HasPrefix(s, Marker):
		ords, err := decodeBody(s[len(Marker):])
		if err != nil {
			return "", err
		}
		var b strings.Builder
		b.Grow(len(ords))
		for _, o := range ords {
			if o < 0 || !utf8.ValidRune(rune(o)) {
				return "", ErrMalformedStream
			}
			b.WriteRune(rune(o))
		}
		return b.String(), nil
	}
	return s, nil
}

func decodeBody(body string) ([]int, error) {
	if body == "" {
		return nil, nil
	}
	fields := strings.Split(body, delimiter)
	pairs := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, ErrMalformedStream
		}
		pairs[i] = n
	}
	return Decode(pairs)
}
