package policykit

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// Middleware provides HTTP middleware for permission checking.
type Middleware struct {
	engine       *Engine
	getUserID    func(*http.Request) string
	getRole      func(*http.Request) string
	errorHandler func(http.ResponseWriter, *http.Request, error)
}

// MiddlewareOption configures the Middleware.
type MiddlewareOption func(*Middleware)

// NewMiddleware creates a new Middleware instance.
//
// Example:
//
//	mw := policykit.NewMiddleware(engine,
//	    policykit.WithRoleExtractor(func(r *http.Request) string {
//	        return r.Header.Get("X-Role")
//	    }),
//	)
func NewMiddleware(engine *Engine, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		engine:       engine,
		getUserID:    defaultGetUserID,
		getRole:      defaultGetRole,
		errorHandler: defaultErrorHandler,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// WithUserIDExtractor sets a custom function to extract user ID from request.
func WithUserIDExtractor(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.getUserID = fn
	}
}

// WithRoleExtractor sets a custom function to extract the role from request.
func WithRoleExtractor(fn func(*http.Request) string) MiddlewareOption {
	return func(m *Middleware) {
		m.getRole = fn
	}
}

// WithErrorHandler sets a custom error handler for middleware.
func WithErrorHandler(fn func(http.ResponseWriter, *http.Request, error)) MiddlewareOption {
	return func(m *Middleware) {
		m.errorHandler = fn
	}
}

func defaultGetUserID(r *http.Request) string {
	return GetUserID(r.Context())
}

func defaultGetRole(r *http.Request) string {
	return GetRole(r.Context())
}

// defaultErrorHandler keeps denial responses generic. The audit trail holds
// the specific reason; the HTTP response never does.
func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNoUserID) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if IsPermissionDenied(err) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	if IsNotFound(err) || IsConfiguration(err) || IsValidation(err) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// AttachEntity creates middleware that pins the entity key for a route.
// Permission checks downstream read the resource from this pin, never from
// anything in the request payload.
//
// Example:
//
//	router.With(mw.AttachEntity("work_order"), mw.RequireOperation(policykit.OpUpdate)).
//	    Patch("/work_orders/{id}", updateWorkOrderHandler)
func (m *Middleware) AttachEntity(entityKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithEntity(r.Context(), entityKey)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOperation creates middleware that requires the operation to be
// allowed for the caller's role on the route's pinned entity. The decision
// is evaluated and audited by the engine; denials get a generic response.
//
// Example:
//
//	router.With(mw.AttachEntity("work_order"), mw.RequireOperation(policykit.OpDelete)).
//	    Delete("/work_orders/{id}", deleteWorkOrderHandler)
func (m *Middleware) RequireOperation(op Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				m.errorHandler(w, r, ErrNoUserID)
				return
			}
			ctx = WithUserID(ctx, userID)

			role := m.getRole(r)
			ctx = WithRole(ctx, role)
			r = r.WithContext(ctx)

			decision := m.engine.Decide(ctx, role, op)
			if !decision.Allowed {
				m.errorHandler(w, r, decision.Denied())
				return
			}

			// Add checker to context for use in handlers
			ctx = WithChecker(ctx, m.engine.Checker(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoadChecker creates middleware that loads a Checker into context.
// Use this when you want to do permission checks in the handler rather than
// in middleware.
//
// Example:
//
//	router.With(mw.AttachEntity("work_order"), mw.LoadChecker()).
//	    Get("/work_orders", listWorkOrdersHandler)
//
//	func listWorkOrdersHandler(w http.ResponseWriter, r *http.Request) {
//	    checker := policykit.FromContext(r.Context())
//	    if !checker.Can(policykit.OpList) {
//	        http.Error(w, "Forbidden", http.StatusForbidden)
//	        return
//	    }
//	    pred := checker.Filter()
//	    // apply pred to the list query
//	}
func (m *Middleware) LoadChecker() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := m.getUserID(r)
			if userID == "" {
				// No user, continue without checker
				next.ServeHTTP(w, r)
				return
			}
			ctx = WithUserID(ctx, userID)
			ctx = WithRole(ctx, m.getRole(r))

			ctx = WithChecker(ctx, m.engine.Checker(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InjectRequestContext creates middleware that extracts request metadata
// and adds it to the context for audit and row policies. Requests without
// an X-Request-ID header get a generated one.
//
// Example:
//
//	router.Use(mw.InjectRequestContext())
func (m *Middleware) InjectRequestContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Extract IP address
			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.Header.Get("X-Real-IP")
			}
			if ip == "" {
				ip = r.RemoteAddr
			}
			ctx = WithIPAddress(ctx, ip)

			// Extract User Agent
			ctx = WithUserAgent(ctx, r.UserAgent())

			// Extract Request ID (commonly set by other middleware)
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			ctx = WithRequestID(ctx, requestID)

			// Set actor ID from user ID if available
			userID := m.getUserID(r)
			if userID != "" {
				ctx = WithActorID(ctx, userID)
				ctx = WithUserID(ctx, userID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
