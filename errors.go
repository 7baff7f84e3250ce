// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// errors.go - sentinel error variables returned by the public stattracker
// API, plus re-exports of the codec and tier sentinels so callers can match
// them with errors.Is without importing internal packages.

// Package stattracker persists per-player game statistics as compact,
// dictionary-compressed payloads behind an in-memory, Redis and SQL tier
// stack.
package stattracker

import (
	"errors"

	"github.com/FiskLee/stattracker/internal/heatmap"
	"github.com/FiskLee/stattracker/internal/l3"
	"github.com/FiskLee/stattracker/internal/rle"
	"github.com/FiskLee/stattracker/internal/subst"
)

// Data errors
var (
	ErrNotFound  = errors.New("stattracker: record not found")
	ErrInvalidID = errors.New("stattracker: player id is required")
	ErrNilRecord = errors.New("stattracker: record is nil")
)

// Codec errors. ErrVersionMismatch is diagnostic only: it is reported
// through the logger and metrics, never returned from a read.
var (
	ErrSerialization   = subst.ErrSerialization
	ErrDeserialization = subst.ErrDeserialization
	ErrMalformedStream = rle.ErrMalformedStream
	ErrVersionMismatch = subst.ErrVersionMismatch
	ErrDimension       = heatmap.ErrDimension
)

// Infrastructure errors
var (
	ErrL3Unavailable = errors.New("stattracker: no persistence tier configured")
	ErrUnavailable   = errors.New("stattracker: store is closed")
	ErrSealFailed    = errors.New("stattracker: payload sealing failed")
	ErrUnknownColumn = l3.ErrUnknownColumn
)

// Config errors
var (
	ErrInvalidConfig = errors.New("stattracker: invalid configuration")
)

// Write-behind errors
var (
	ErrWriteBehindMaxRetry = errors.New("stattracker: write-behind exceeded max retries")
)

// Domain errors
var (
	ErrInsufficientFunds = errors.New("stattracker: insufficient funds")
)
