package policykit

import "time"

// AuditFilter provides options for filtering audit queries.
type AuditFilter struct {
	// Filter by actor who performed the action
	Actor string

	// Filter by resource key
	Resource string

	// Filter by the specific row the action targeted
	ResourceID string

	// Filter by derived action name, e.g. "work_order.update"
	Action string

	// Filter by decision ("allow" or "deny")
	Decision string

	// Filter by request ID for correlation
	RequestID string

	// Filter by time range
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// NewAuditFilter creates a new AuditFilter with default values.
func NewAuditFilter() AuditFilter {
	return AuditFilter{
		Limit: 100,
	}
}

// WithActor sets the actor filter.
func (f AuditFilter) WithActor(actor string) AuditFilter {
	f.Actor = actor
	return f
}

// WithResource sets the resource filter.
func (f AuditFilter) WithResource(resource string) AuditFilter {
	f.Resource = resource
	return f
}

// WithResourceID sets the resource ID filter.
func (f AuditFilter) WithResourceID(resourceID string) AuditFilter {
	f.ResourceID = resourceID
	return f
}

// WithAction sets the action filter.
func (f AuditFilter) WithAction(action string) AuditFilter {
	f.Action = action
	return f
}

// WithDecision sets the decision filter.
func (f AuditFilter) WithDecision(decision string) AuditFilter {
	f.Decision = decision
	return f
}

// WithRequestID sets the request ID filter.
func (f AuditFilter) WithRequestID(requestID string) AuditFilter {
	f.RequestID = requestID
	return f
}

// WithTimeRange sets the time range filter.
func (f AuditFilter) WithTimeRange(since, until time.Time) AuditFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithSince sets the start time filter.
func (f AuditFilter) WithSince(since time.Time) AuditFilter {
	f.Since = since
	return f
}

// WithUntil sets the end time filter.
func (f AuditFilter) WithUntil(until time.Time) AuditFilter {
	f.Until = until
	return f
}

// WithLimit sets the limit for results.
func (f AuditFilter) WithLimit(limit int) AuditFilter {
	f.Limit = limit
	return f
}

// WithOffset sets the offset for pagination.
func (f AuditFilter) WithOffset(offset int) AuditFilter {
	f.Offset = offset
	return f
}

// WithPagination sets both limit and offset.
func (f AuditFilter) WithPagination(limit, offset int) AuditFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}
