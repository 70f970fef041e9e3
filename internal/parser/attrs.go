// Package parser extracts typed actions and attribute maps from
// block-result events. Nothing outside this package ever sees a raw
// map[string]string; everything is accessed through EventAttrs.
package parser

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// EventAttrs wraps a single event's attribute map with typed getters.
// Contract events are dictionaries of strings on the wire; this type is
// the boundary that keeps that dynamism from leaking into the rest of
// the pipeline (see spec design note on dynamic attribute maps).
type EventAttrs struct {
	raw map[string]string
}

// NewEventAttrs builds an EventAttrs from a raw attribute map. The map is
// copied defensively so callers cannot mutate it out from under us.
func NewEventAttrs(raw map[string]string) EventAttrs {
	cp := make(map[string]string, len(raw))
	for k, v := range raw {
		cp[k] = v
	}
	return EventAttrs{raw: cp}
}

// Get returns the raw string value for key, if present.
func (a EventAttrs) Get(key string) (string, bool) {
	v, ok := a.raw[key]
	return v, ok
}

// GetOr returns the raw string value for key, or def if absent.
func (a EventAttrs) GetOr(key, def string) string {
	if v, ok := a.raw[key]; ok {
		return v
	}
	return def
}

// MustInt parses key as a base-10 integer.
func (a EventAttrs) MustInt(key string) (int64, bool) {
	v, ok := a.raw[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MustBigDecimal parses key as a decimal amount.
func (a EventAttrs) MustBigDecimal(key string) (decimal.Decimal, bool) {
	v, ok := a.raw[key]
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Keys returns the attribute keys, for diagnostics only.
func (a EventAttrs) Keys() []string {
	keys := make([]string, 0, len(a.raw))
	for k := range a.raw {
		keys = append(keys, k)
	}
	return keys
}

// RawEvent is one decoded event from a transaction's event log.
type RawEvent struct {
	Type  string
	Attrs EventAttrs
}
