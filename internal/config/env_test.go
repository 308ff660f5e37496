// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("T_STR", "value")
	t.Setenv("T_EMPTY", "")
	t.Setenv("T_INT", "42")
	t.Setenv("T_BADINT", "forty")
	t.Setenv("T_DUR", "3s")
	t.Setenv("T_BADDUR", "3 seconds")
	t.Setenv("T_BOOL", "yes")
	t.Setenv("T_BADBOOL", "perhaps")
	t.Setenv("T_FLOAT", "0.25")

	assert.Equal(t, "value", ParseString("T_STR", "d"))
	assert.Equal(t, "d", ParseString("T_EMPTY", "d"))
	assert.Equal(t, "d", ParseString("T_UNSET", "d"))

	assert.Equal(t, 42, ParseInt("T_INT", 1))
	assert.Equal(t, 1, ParseInt("T_BADINT", 1))

	assert.Equal(t, 3*time.Second, ParseDuration("T_DUR", time.Second))
	assert.Equal(t, time.Second, ParseDuration("T_BADDUR", time.Second))

	assert.True(t, ParseBool("T_BOOL", false))
	assert.True(t, ParseBool("T_BADBOOL", true))

	assert.InDelta(t, 0.25, ParseFloat("T_FLOAT", 1), 1e-9)
}

func TestIsSensitiveKey(t *testing.T) {
	assert.True(t, isSensitiveKey("SESSIOND_API_KEY"))
	assert.True(t, isSensitiveKey("SESSIOND_REDIS_PASSWORD"))
	assert.False(t, isSensitiveKey("SESSIOND_DATA_DIR"))
}
