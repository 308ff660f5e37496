// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "errors"

// ErrIllegalTransition is returned when an event is not allowed in the current state.
var ErrIllegalTransition = errors.New("illegal lifecycle transition")
