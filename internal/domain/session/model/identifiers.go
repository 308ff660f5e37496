// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"regexp"
)

// MaxSessionIDLength bounds identifiers so they stay safe as directory names.
const MaxSessionIDLength = 64

var sessionIDRe = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// IsSafeSessionID returns true if the ID is safe for filesystem paths and URLs.
func IsSafeSessionID(id string) bool {
	return len(id) > 0 && len(id) <= MaxSessionIDLength && sessionIDRe.MatchString(id)
}

// ValidateSessionID returns ErrInvalidID (wrapped with the offending value) for unsafe IDs.
func ValidateSessionID(id string) error {
	if !IsSafeSessionID(id) {
		return fmt.Errorf("%w: %q must be 1-%d characters of [A-Za-z0-9-]", ErrInvalidID, id, MaxSessionIDLength)
	}
	return nil
}
