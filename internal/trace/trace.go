// Package trace records what happened to each frame of a run as an ordered,
// timing-free event list. Two runs over identical inputs that produce
// identical artifacts yield byte-identical traces and therefore equal hashes.
package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Kind discriminates events. The string values are part of the canonical
// bytes; do not rename.
type Kind string

const (
	FrameRendered      Kind = "FrameRendered"
	FrameRenderFailed  Kind = "FrameRenderFailed"
	FrameTimedOut      Kind = "FrameTimedOut"
	FrameCaptured      Kind = "FrameCaptured"
	FrameCompared      Kind = "FrameCompared"
	FrameCompareFailed Kind = "FrameCompareFailed"
)

// Event is one logical transition for one frame. It never carries timings,
// error text or host paths.
type Event struct {
	Kind   Kind   `json:"kind"`
	Frame  int    `json:"frame"`
	Reason string `json:"reason,omitempty"`
	Digest string `json:"digest,omitempty"`
}

// Trace is the canonical record of a run over one subject (scene or project).
type Trace struct {
	Subject string  `json:"subject"`
	Events  []Event `json:"events"`
}

func (t *Trace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.Subject == "" {
		return errors.New("subject is required")
	}
	for i, e := range t.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Frame <= 0 {
			return fmt.Errorf("events[%d].frame must be positive", i)
		}
	}
	return nil
}

// Canonicalize orders events by (frame, kind order, reason, digest).
func (t *Trace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		return a.Digest < b.Digest
	})
}

func kindOrder(k Kind) int {
	switch k {
	case FrameRendered:
		return 10
	case FrameRenderFailed:
		return 20
	case FrameTimedOut:
		return 30
	case FrameCaptured:
		return 40
	case FrameCompared:
		return 50
	case FrameCompareFailed:
		return 60
	default:
		return 1000
	}
}

// CanonicalJSON encodes a canonicalized copy; the receiver is not modified.
func (t Trace) CanonicalJSON() ([]byte, error) {
	cp := Trace{Subject: t.Subject, Events: make([]Event, len(t.Events))}
	copy(cp.Events, t.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(cp)
}

// Hash is the sha256 hex digest of CanonicalJSON.
func (t Trace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
