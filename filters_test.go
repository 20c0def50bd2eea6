package policykit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestAuditFilterDefaults validates the default filter values.
func TestAuditFilterDefaults(t *testing.T) {
	f := NewAuditFilter()
	assert.Equal(t, 100, f.Limit)
	assert.Equal(t, 0, f.Offset)
	assert.Empty(t, f.Actor)
	assert.True(t, f.Since.IsZero())
}

// TestAuditFilterChaining validates the builder methods.
func TestAuditFilterChaining(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	f := NewAuditFilter().
		WithActor("alice").
		WithResource("work_orders").
		WithResourceID("row-1").
		WithAction("work_order.update").
		WithDecision("deny").
		WithRequestID("req-42").
		WithTimeRange(since, until).
		WithLimit(25).
		WithOffset(50)

	assert.Equal(t, "alice", f.Actor)
	assert.Equal(t, "work_orders", f.Resource)
	assert.Equal(t, "row-1", f.ResourceID)
	assert.Equal(t, "work_order.update", f.Action)
	assert.Equal(t, "deny", f.Decision)
	assert.Equal(t, "req-42", f.RequestID)
	assert.Equal(t, since, f.Since)
	assert.Equal(t, until, f.Until)
	assert.Equal(t, 25, f.Limit)
	assert.Equal(t, 50, f.Offset)
}

// TestAuditFilterValueSemantics validates that chaining never mutates the
// filter it was called on.
func TestAuditFilterValueSemantics(t *testing.T) {
	base := NewAuditFilter()
	derived := base.WithActor("alice").WithPagination(10, 20)

	assert.Empty(t, base.Actor)
	assert.Equal(t, 100, base.Limit)
	assert.Equal(t, 0, base.Offset)

	assert.Equal(t, "alice", derived.Actor)
	assert.Equal(t, 10, derived.Limit)
	assert.Equal(t, 20, derived.Offset)
}

// TestAuditFilterSinceUntil validates the single-ended time helpers.
func TestAuditFilterSinceUntil(t *testing.T) {
	ts := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	f := NewAuditFilter().WithSince(ts)
	assert.Equal(t, ts, f.Since)
	assert.True(t, f.Until.IsZero())

	f = NewAuditFilter().WithUntil(ts)
	assert.Equal(t, ts, f.Until)
	assert.True(t, f.Since.IsZero())
}
