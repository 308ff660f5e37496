// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"s1", true},
		{"tenant-42", true},
		{"ABC-def-123", true},
		{strings.Repeat("a", MaxSessionIDLength), true},
		{strings.Repeat("a", MaxSessionIDLength+1), false},
		{"", false},
		{"../etc", false},
		{"a/b", false},
		{"with space", false},
		{"under_score", false},
		{"emoji-😀", false},
	}
	for _, tt := range tests {
		err := ValidateSessionID(tt.id)
		if tt.want && err != nil {
			t.Errorf("ValidateSessionID(%q) = %v, want nil", tt.id, err)
		}
		if !tt.want && !errors.Is(err, ErrInvalidID) {
			t.Errorf("ValidateSessionID(%q) = %v, want ErrInvalidID", tt.id, err)
		}
	}
}
