package policykit

import (
	"context"
	"testing"
)

// discardSink drops every record. Benchmarks use it so the decision and
// validation paths are measured without sink growth.
type discardSink struct{}

func (discardSink) Write(ctx context.Context, rec *AuditRecord) error { return nil }

// newBenchEngine builds the fixture engine with a discarding audit sink
func newBenchEngine(b *testing.B) *Engine {
	b.Helper()

	engine, err := New(context.Background(), Config{
		Registry:     testRegistry(),
		RoleSource:   NewStaticRoleSource(testRoles()...),
		Grants:       testGrants(),
		Policies:     testPolicies(),
		AuditPrimary: discardSink{},
	})
	if err != nil {
		b.Fatalf("Failed to build bench engine: %v", err)
	}
	b.Cleanup(engine.Close)
	return engine
}

// ============================================================================
// Permission Decision Benchmarks
// ============================================================================

// BenchmarkEngineCan benchmarks an exact-grant decision
func BenchmarkEngineCan(b *testing.B) {
	engine := newBenchEngine(b)
	ctx := requestCtx("bench-user", "viewer", "work_order")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = engine.Can(ctx, "viewer", OpRead)
	}
}

// BenchmarkEngineCanInherited benchmarks a decision resolved by walking the
// role hierarchy down to viewer
func BenchmarkEngineCanInherited(b *testing.B) {
	engine := newBenchEngine(b)
	ctx := requestCtx("bench-user", "admin", "work_order")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = engine.Can(ctx, "admin", OpRead)
	}
}

// BenchmarkEngineDecideDenied benchmarks the fail-closed path
func BenchmarkEngineDecideDenied(b *testing.B) {
	engine := newBenchEngine(b)
	ctx := requestCtx("bench-user", "viewer", "work_order")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = engine.Decide(ctx, "viewer", OpDelete)
	}
}

// BenchmarkConcurrentCan benchmarks parallel decisions against one epoch
func BenchmarkConcurrentCan(b *testing.B) {
	engine := newBenchEngine(b)
	ctx := requestCtx("bench-user", "technician", "work_order")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = engine.Can(ctx, "technician", OpUpdate)
		}
	})
}

// BenchmarkCheckerCan benchmarks decisions through a pinned checker
func BenchmarkCheckerCan(b *testing.B) {
	engine := newBenchEngine(b)
	checker := engine.Checker(requestCtx("bench-user", "supervisor", "work_order"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = checker.Can(OpExport)
	}
}

// BenchmarkEngineCanAllocs measures memory allocations per decision
func BenchmarkEngineCanAllocs(b *testing.B) {
	engine := newBenchEngine(b)
	ctx := requestCtx("bench-user", "viewer", "work_order")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = engine.Can(ctx, "viewer", OpRead)
	}
}

// ============================================================================
// Validation Benchmarks
// ============================================================================

// BenchmarkValidatorCreate benchmarks create validation with coercions
func BenchmarkValidatorCreate(b *testing.B) {
	engine := newBenchEngine(b)
	payload := map[string]any{
		"title":           "Replace compressor unit",
		"customer_id":     "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"status":          "open",
		"priority":        float64(3),
		"estimated_hours": "12.5",
		"region":          "north",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := engine.Validate("work_order", OpCreate, payload)
		if err != nil {
			b.Fatalf("Validate failed: %v", err)
		}
	}
}

// BenchmarkValidatorUpdate benchmarks update validation including the
// immutable-field sweep
func BenchmarkValidatorUpdate(b *testing.B) {
	engine := newBenchEngine(b)
	payload := map[string]any{
		"status":   "assigned",
		"priority": int64(4),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := engine.Validate("work_order", OpUpdate, payload)
		if err != nil {
			b.Fatalf("Validate failed: %v", err)
		}
	}
}

// BenchmarkValidatorCreateAllocs measures memory allocations per validation
func BenchmarkValidatorCreateAllocs(b *testing.B) {
	engine := newBenchEngine(b)
	payload := map[string]any{
		"title":       "Replace compressor unit",
		"customer_id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = engine.Validate("work_order", OpCreate, payload)
	}
}

// ============================================================================
// Row Policy Benchmarks
// ============================================================================

// BenchmarkFilterFor benchmarks row predicate resolution
func BenchmarkFilterFor(b *testing.B) {
	engine := newBenchEngine(b)
	ctx := requestCtx("bench-user", "technician", "work_order")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = engine.FilterFor(ctx, "technician")
	}
}

// BenchmarkFilterForComposed benchmarks a role whose policies compose with AND
func BenchmarkFilterForComposed(b *testing.B) {
	engine := newBenchEngine(b)
	ctx := WithAttribute(requestCtx("bench-user", "dispatcher", "customer"), "region", "north")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = engine.FilterFor(ctx, "dispatcher")
	}
}

// BenchmarkPredicateSQL benchmarks clause rendering
func BenchmarkPredicateSQL(b *testing.B) {
	p := Where("region", CmpEq, "north").And(Where("priority", CmpGte, 3))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.SQL()
	}
}

// ============================================================================
// Audit Pipeline Benchmarks
// ============================================================================

// BenchmarkEmitterRecord benchmarks a synchronous audit write
func BenchmarkEmitterRecord(b *testing.B) {
	emitter := NewEmitter(discardSink{}, nil, 0)
	defer emitter.Close()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := AuditRecord{Actor: "bench-user", Action: "work_order.read", Resource: "work_orders", Decision: "allow"}
		_ = emitter.Record(ctx, &rec)
	}
}

// BenchmarkEmitterRecordAsync benchmarks the queued audit path
func BenchmarkEmitterRecordAsync(b *testing.B) {
	emitter := NewEmitter(discardSink{}, nil, 1024)
	defer emitter.Close()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := AuditRecord{Actor: "bench-user", Action: "work_order.read", Resource: "work_orders", Decision: "allow"}
		emitter.RecordAsync(ctx, &rec)
	}
}
