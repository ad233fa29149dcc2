// Package ingest folds externally captured usage checkpoints into the
// ledger.
package ingest

import (
	"math"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/theirongolddev/costledger/internal/model"
)

// Marker is one "usage: used/budget; remaining remaining" occurrence.
type Marker struct {
	Used      int64
	Budget    int64
	Remaining int64
}

var (
	markerRe   = regexp.MustCompile(`(?i)usage:\s*(\d+)\s*/\s*(\d+)\s*;\s*(\d+)\s*remaining`)
	sourceIDRe = regexp.MustCompile(`(?i)checkpoint[_-](\d+)`)
)

// ParseMarkers returns every usage marker in text, in order.
func ParseMarkers(text string) []Marker {
	matches := markerRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Marker, 0, len(matches))
	for _, m := range matches {
		used, err1 := strconv.ParseInt(m[1], 10, 64)
		budget, err2 := strconv.ParseInt(m[2], 10, 64)
		remaining, err3 := strconv.ParseInt(m[3], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		out = append(out, Marker{Used: used, Budget: budget, Remaining: remaining})
	}
	return out
}

// HasMarker is a cheap check for at least one usage marker.
func HasMarker(text string) bool {
	return markerRe.MatchString(text)
}

// Delta is last.Used - first.Used across a blob's markers. A single marker
// counts as the running total so far, since the true baseline is unknown.
func Delta(markers []Marker) int64 {
	switch len(markers) {
	case 0:
		return 0
	case 1:
		return markers[0].Used
	}
	d := markers[len(markers)-1].Used - markers[0].Used
	if d < 0 {
		return 0
	}
	return d
}

// Split divides delta into input and output using the input share.
func Split(delta int64, inputShare float64) (input, output int64) {
	if delta <= 0 {
		return 0, 0
	}
	if inputShare < 0 || inputShare > 1 || math.IsNaN(inputShare) {
		inputShare = DefaultInputShare
	}
	input = int64(math.Floor(float64(delta) * inputShare))
	return input, delta - input
}

// SessionIDFromSource extracts the session id encoded in a checkpoint file
// name such as checkpoint-1700000000000.txt.
func SessionIDFromSource(sourceID string) model.SessionID {
	if sourceID == "" {
		return ""
	}
	m := sourceIDRe.FindStringSubmatch(filepath.Base(sourceID))
	if m == nil {
		return ""
	}
	return model.SessionID(m[1])
}
