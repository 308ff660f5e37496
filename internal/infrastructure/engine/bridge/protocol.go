// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/ManuGH/sessiond/internal/domain/session/ports"
)

// Line is one newline-delimited JSON message exchanged with the bridge process.
//
//	stdout: {"type":"qr","data":"<challenge>"} | qr_expired | authenticated | ready |
//	        disconnected | auth_failure | pong
//	stdin:  {"type":"ping"}
type Line struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

const (
	lineQR            = "qr"
	lineQRExpired     = "qr_expired"
	lineAuthenticated = "authenticated"
	lineReady         = "ready"
	lineDisconnected  = "disconnected"
	lineAuthFailure   = "auth_failure"
	linePing          = "ping"
	linePong          = "pong"
)

var pingLine = mustLine(Line{Type: linePing})

func mustLine(l Line) []byte {
	b, err := json.Marshal(l)
	if err != nil {
		panic(err)
	}
	return append(b, '\n')
}

func decodeLine(raw []byte) (Line, error) {
	var l Line
	if err := json.Unmarshal(raw, &l); err != nil {
		return Line{}, fmt.Errorf("decode bridge line: %w", err)
	}
	if l.Type == "" {
		return Line{}, fmt.Errorf("decode bridge line: missing type")
	}
	return l, nil
}

// eventFor maps a stdout line to an engine event. ok is false for control
// lines (pong) and unknown types.
func eventFor(l Line) (ports.EventType, bool) {
	switch l.Type {
	case lineQR:
		return ports.EventQR, true
	case lineQRExpired:
		return ports.EventQRExpired, true
	case lineAuthenticated, lineReady:
		return ports.EventAuthenticated, true
	case lineDisconnected:
		return ports.EventDisconnected, true
	case lineAuthFailure:
		return ports.EventAuthFailure, true
	default:
		return "", false
	}
}
