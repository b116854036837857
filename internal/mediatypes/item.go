package mediatypes

import (
	"fmt"
	"maps"
	"strconv"
	"time"
)

// Fingerprint is a cheap change-detection signature for a file.
type Fingerprint struct {
	Size    int64
	ModTime int64 // Unix nanoseconds
}

// NewFingerprint builds a Fingerprint from a size and modification time.
func NewFingerprint(size int64, modTime time.Time) Fingerprint {
	return Fingerprint{Size: size, ModTime: modTime.UnixNano()}
}

// Equal reports whether two fingerprints are identical.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.Size == other.Size && f.ModTime == other.ModTime
}

// IsZero reports whether the fingerprint was never set.
func (f Fingerprint) IsZero() bool {
	return f.Size == 0 && f.ModTime == 0
}

// Time returns the modification time as a time.Time.
func (f Fingerprint) Time() time.Time {
	return time.Unix(0, f.ModTime)
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%d@%d", f.Size, f.ModTime)
}

// ValueKind distinguishes numeric from textual metric values.
type ValueKind uint8

const (
	// KindNumber is a numeric metric.
	KindNumber ValueKind = iota
	// KindText is a string metric.
	KindText
)

// Value is a metric value: either a number or a string.
// The zero Value is the number 0.
type Value struct {
	kind ValueKind
	num  float64
	text string
}

// Number returns a numeric Value.
func Number(v float64) Value {
	return Value{kind: KindNumber, num: v}
}

// Text returns a textual Value.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Kind returns the kind of the value.
func (v Value) Kind() ValueKind { return v.kind }

// IsText reports whether the value is a string.
func (v Value) IsText() bool { return v.kind == KindText }

// Float returns the numeric value. Text values that parse as numbers are
// converted; anything else is 0.
func (v Value) Float() float64 {
	if v.kind == KindNumber {
		return v.num
	}
	if f, err := strconv.ParseFloat(v.text, 64); err == nil {
		return f
	}
	return 0
}

// String returns the textual form of the value.
func (v Value) String() string {
	if v.kind == KindText {
		return v.text
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// Interface returns the value as a plain Go value (float64 or string).
func (v Value) Interface() any {
	if v.kind == KindText {
		return v.text
	}
	return v.num
}

// Compare orders two values. Numbers order numerically, strings
// lexicographically, and every number sorts before every string.
func Compare(a, b Value) int {
	switch {
	case a.kind == KindNumber && b.kind == KindNumber:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
		return 0
	case a.kind == KindText && b.kind == KindText:
		switch {
		case a.text < b.text:
			return -1
		case a.text > b.text:
			return 1
		}
		return 0
	case a.kind == KindNumber:
		return -1
	default:
		return 1
	}
}

// Metrics maps metric keys to values.
type Metrics map[string]Value

// Item is one discovered asset.
//
// Items are treated as values: helpers that change an item return a copy with
// its own Metrics map, so a shared Item is never mutated in place.
type Item struct {
	Path      string
	Thumbnail []byte
	Metrics   Metrics
}

// NewItem creates an item with an empty metric set.
func NewItem(path string, thumbnail []byte) Item {
	return Item{Path: path, Thumbnail: thumbnail, Metrics: Metrics{}}
}

// Metric returns the value for key. Missing metrics read as the number 0.
func (it Item) Metric(key string) Value {
	if v, ok := it.Metrics[key]; ok {
		return v
	}
	return Value{}
}

// HasMetric reports whether the item carries a value for key.
func (it Item) HasMetric(key string) bool {
	_, ok := it.Metrics[key]
	return ok
}

// WithMetric returns a copy of the item with key set to v.
func (it Item) WithMetric(key string, v Value) Item {
	return it.WithMetrics(Metrics{key: v})
}

// WithMetrics returns a copy of the item with all of m merged into its metrics.
func (it Item) WithMetrics(m Metrics) Item {
	merged := make(Metrics, len(it.Metrics)+len(m))
	maps.Copy(merged, it.Metrics)
	maps.Copy(merged, m)
	it.Metrics = merged
	return it
}

// Paths returns the paths of items in order.
func Paths(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Path
	}
	return out
}
