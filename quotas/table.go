// Package quotas holds per-identity quota overrides for the window strategy.
package quotas

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ajiwo/admission/window"
)

var ErrInvalidOverride = errors.New("invalid quota override")

// Table is an immutable identity -> quota lookup
type Table struct {
	entries map[string]window.Quota
}

var _ window.Overrides = (*Table)(nil)

// NewTable validates and copies entries into a table
func NewTable(entries map[string]window.Quota) (*Table, error) {
	t := &Table{entries: make(map[string]window.Quota, len(entries))}
	for identity, q := range entries {
		if identity == "" {
			return nil, fmt.Errorf("%w: empty identity", ErrInvalidOverride)
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("%w for %q: %w", ErrInvalidOverride, identity, err)
		}
		t.entries[identity] = q
	}
	return t, nil
}

// Lookup implements window.Overrides
func (t *Table) Lookup(identity string) (window.Quota, bool) {
	if t == nil {
		return window.Quota{}, false
	}
	q, ok := t.entries[identity]
	return q, ok
}

// Len returns the number of overrides
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Identities returns the overridden identities in sorted order
func (t *Table) Identities() []string {
	if t == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(t.entries))
}

// Parse reads overrides written as "identity=limit/window" pairs separated by
// commas, for example "partner=1000/1h,10.0.0.7=5/1m". The identity ends at
// the last '=' so base64 padding stays part of it.
func Parse(raw string) (*Table, error) {
	entries := make(map[string]window.Quota)

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NewTable(entries)
	}

	for item := range strings.SplitSeq(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		eq := strings.LastIndex(item, "=")
		if eq <= 0 {
			return nil, fmt.Errorf("%w: %q must follow IDENTITY=LIMIT/WINDOW", ErrInvalidOverride, item)
		}
		identity, rule := strings.TrimSpace(item[:eq]), item[eq+1:]

		limitStr, windowStr, ok := strings.Cut(rule, "/")
		if !ok {
			return nil, fmt.Errorf("%w: %q must follow IDENTITY=LIMIT/WINDOW", ErrInvalidOverride, item)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(limitStr))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid limit for %q: %w", ErrInvalidOverride, identity, err)
		}
		length, err := time.ParseDuration(strings.TrimSpace(windowStr))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid window for %q: %w", ErrInvalidOverride, identity, err)
		}
		if _, dup := entries[identity]; dup {
			return nil, fmt.Errorf("%w: duplicate identity %q", ErrInvalidOverride, identity)
		}

		entries[identity] = window.Quota{Limit: limit, Window: length}
	}

	return NewTable(entries)
}

// Merge returns a table holding the entries of all tables. Later tables win
// on conflicts.
func Merge(tables ...*Table) *Table {
	merged := &Table{entries: make(map[string]window.Quota)}
	for _, t := range tables {
		if t == nil {
			continue
		}
		maps.Copy(merged.entries, t.entries)
	}
	return merged
}
