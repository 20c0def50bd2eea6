package policykit

import (
	"context"
)

// Context keys for PolicyKit values.
type contextKey string

const (
	contextKeyUserID     contextKey = "policykit:user_id"
	contextKeyActorID    contextKey = "policykit:actor_id"
	contextKeyRole       contextKey = "policykit:role"
	contextKeyEntity     contextKey = "policykit:entity"
	contextKeyAttributes contextKey = "policykit:attributes"
	contextKeyIPAddress  contextKey = "policykit:ip_address"
	contextKeyUserAgent  contextKey = "policykit:user_agent"
	contextKeyRequestID  contextKey = "policykit:request_id"
	contextKeyChecker    contextKey = "policykit:checker"
)

// WithUserID adds a user ID to the context.
// This is the user being checked for permissions.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

// GetUserID retrieves the user ID from context.
// Returns empty string if not set.
func GetUserID(ctx context.Context) string {
	if v := ctx.Value(contextKeyUserID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// MustGetUserID retrieves the user ID from context.
// Panics if not set.
func MustGetUserID(ctx context.Context) string {
	userID := GetUserID(ctx)
	if userID == "" {
		panic("policykit: user ID not in context")
	}
	return userID
}

// WithActorID adds an actor ID to the context.
// This is the user performing the action (for audit purposes).
// Often the same as user ID, but can be different for admin actions.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, contextKeyActorID, actorID)
}

// GetActorID retrieves the actor ID from context.
// Falls back to user ID if actor ID is not explicitly set.
func GetActorID(ctx context.Context) string {
	if v := ctx.Value(contextKeyActorID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	// Fallback to user ID
	return GetUserID(ctx)
}

// WithRole adds the requesting user's role to the context.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, contextKeyRole, role)
}

// GetRole retrieves the role from context.
func GetRole(ctx context.Context) string {
	if v := ctx.Value(contextKeyRole); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithEntity pins the entity key the current request operates on.
// Route wiring sets it; permission checks read the resource from here,
// never from request payloads.
func WithEntity(ctx context.Context, entityKey string) context.Context {
	return context.WithValue(ctx, contextKeyEntity, entityKey)
}

// GetEntity retrieves the entity key from context.
// Returns empty string if not set.
func GetEntity(ctx context.Context) string {
	if v := ctx.Value(contextKeyEntity); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithAttribute adds one named request attribute to the context.
// Attributes feed row policies, for example a department from the
// identity layer. The stored map is copied on each write.
func WithAttribute(ctx context.Context, name, value string) context.Context {
	attrs := GetAttributes(ctx)
	next := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		next[k] = v
	}
	next[name] = value
	return context.WithValue(ctx, contextKeyAttributes, next)
}

// WithAttributes replaces the request attributes in the context.
func WithAttributes(ctx context.Context, attrs map[string]string) context.Context {
	next := make(map[string]string, len(attrs))
	for k, v := range attrs {
		next[k] = v
	}
	return context.WithValue(ctx, contextKeyAttributes, next)
}

// GetAttributes retrieves the request attributes from context.
// Returns nil if none are set. The returned map must not be mutated.
func GetAttributes(ctx context.Context) map[string]string {
	if v := ctx.Value(contextKeyAttributes); v != nil {
		if m, ok := v.(map[string]string); ok {
			return m
		}
	}
	return nil
}

// WithIPAddress adds the client IP address to the context (for audit).
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyIPAddress, ip)
}

// GetIPAddress retrieves the IP address from context.
func GetIPAddress(ctx context.Context) string {
	if v := ctx.Value(contextKeyIPAddress); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithUserAgent adds the user agent to the context (for audit).
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, contextKeyUserAgent, ua)
}

// GetUserAgent retrieves the user agent from context.
func GetUserAgent(ctx context.Context) string {
	if v := ctx.Value(contextKeyUserAgent); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context (for audit and correlation).
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(contextKeyRequestID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithChecker adds a Checker to the context.
// This is set by middleware and can be retrieved in handlers.
func WithChecker(ctx context.Context, checker *Checker) context.Context {
	return context.WithValue(ctx, contextKeyChecker, checker)
}

// GetChecker retrieves the Checker from context.
// Returns nil if not set.
func GetChecker(ctx context.Context) *Checker {
	if v := ctx.Value(contextKeyChecker); v != nil {
		if c, ok := v.(*Checker); ok {
			return c
		}
	}
	return nil
}

// FromContext retrieves the Checker from context.
// Alias for GetChecker for convenience.
func FromContext(ctx context.Context) *Checker {
	return GetChecker(ctx)
}

// GetRequestContext assembles the row-policy inputs from context.
func GetRequestContext(ctx context.Context) RequestContext {
	return RequestContext{
		UserID:     GetUserID(ctx),
		Role:       GetRole(ctx),
		Attributes: GetAttributes(ctx),
	}
}

// AuditContext holds all audit-related information from context.
type AuditContext struct {
	ActorID   string
	IPAddress string
	UserAgent string
	RequestID string
}

// GetAuditContext extracts all audit information from context.
func GetAuditContext(ctx context.Context) AuditContext {
	return AuditContext{
		ActorID:   GetActorID(ctx),
		IPAddress: GetIPAddress(ctx),
		UserAgent: GetUserAgent(ctx),
		RequestID: GetRequestID(ctx),
	}
}

// WithAuditContext adds all audit information to context at once.
func WithAuditContext(ctx context.Context, ac AuditContext) context.Context {
	if ac.ActorID != "" {
		ctx = WithActorID(ctx, ac.ActorID)
	}
	if ac.IPAddress != "" {
		ctx = WithIPAddress(ctx, ac.IPAddress)
	}
	if ac.UserAgent != "" {
		ctx = WithUserAgent(ctx, ac.UserAgent)
	}
	if ac.RequestID != "" {
		ctx = WithRequestID(ctx, ac.RequestID)
	}
	return ctx
}
