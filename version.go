// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// version.go - build metadata injected via -ldflags and the payload format
// version written into every compressed record.

package stattracker

import "github.com/FiskLee/stattracker/internal/subst"

// Build-time variables injected via -ldflags.
//
//	BuildDate format : YYYY.MM.DD-HHMM  (24-hour clock)
//	BuildEnv  values : dev | qa | prod
var (
	// Set by: -ldflags "-X 'github.com/FiskLee/stattracker.BuildDate=2026.10.19-0930'"
	BuildDate = "0000.00.00-0000"

	// Set by: -ldflags "-X 'github.com/FiskLee/stattracker.BuildEnv=prod'"
	BuildEnv = "dev"
)

// FormatVersion is the dictionary format version stamped into new payloads.
const FormatVersion = subst.CurrentVersion

// Version returns the build string in the form "YYYY.MM.DD-HHMM-env".
func Version() string {
	return BuildDate + "-" + BuildEnv
}
