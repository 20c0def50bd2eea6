package policykit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Outcome reports where an audit record ended up.
type Outcome string

const (
	// OutcomePrimary means the record reached the primary sink.
	OutcomePrimary Outcome = "primary"

	// OutcomeFallback means the primary sink failed and the record
	// reached the durable fallback sink instead.
	OutcomeFallback Outcome = "fallback"

	// OutcomeLost means both sinks failed. The failure is logged and
	// counted; it is never raised to the caller.
	OutcomeLost Outcome = "lost"
)

// AuditRecord is one access decision or data change to be recorded.
type AuditRecord struct {
	ID         string         `json:"id"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id,omitempty"`
	Decision   string         `json:"decision"` // "allow" or "deny"
	Reason     string         `json:"reason,omitempty"`
	OldValue   map[string]any `json:"old_value,omitempty"`
	NewValue   map[string]any `json:"new_value,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// toModel converts an AuditRecord to its storage model.
func (r *AuditRecord) toModel() *AuditLogRecord {
	return &AuditLogRecord{
		ID:         r.ID,
		Actor:      r.Actor,
		Action:     r.Action,
		Resource:   r.Resource,
		ResourceID: r.ResourceID,
		Decision:   r.Decision,
		Reason:     r.Reason,
		OldValue:   r.OldValue,
		NewValue:   r.NewValue,
		IPAddress:  r.IPAddress,
		UserAgent:  r.UserAgent,
		RequestID:  r.RequestID,
		CreatedAt:  r.CreatedAt,
	}
}

// AuditLogRecord is the persisted audit row.
type AuditLogRecord struct {
	bun.BaseModel `bun:"table:policy_audit_log,alias:pal"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`

	// Who acted and what they did
	Actor  string `bun:"actor,notnull"`
	Action string `bun:"action,notnull"`

	// What the action targeted
	Resource   string `bun:"resource,notnull"`
	ResourceID string `bun:"resource_id"`

	// The decision and why
	Decision string `bun:"decision,notnull"` // "allow", "deny"
	Reason   string `bun:"reason"`

	// Before and after payloads for data changes
	OldValue map[string]any `bun:"old_value,type:jsonb"`
	NewValue map[string]any `bun:"new_value,type:jsonb"`

	// Request metadata for forensics
	IPAddress string `bun:"ip_address"`
	UserAgent string `bun:"user_agent"`
	RequestID string `bun:"request_id"`
}

func (m *AuditLogRecord) toRecord() AuditRecord {
	return AuditRecord{
		ID:         m.ID,
		Actor:      m.Actor,
		Action:     m.Action,
		Resource:   m.Resource,
		ResourceID: m.ResourceID,
		Decision:   m.Decision,
		Reason:     m.Reason,
		OldValue:   m.OldValue,
		NewValue:   m.NewValue,
		IPAddress:  m.IPAddress,
		UserAgent:  m.UserAgent,
		RequestID:  m.RequestID,
		CreatedAt:  m.CreatedAt,
	}
}

// DatabaseAuditSink writes audit records to the policy_audit_log table.
// It is the usual primary sink.
type DatabaseAuditSink struct {
	db dbkit.IDB
}

// NewDatabaseAuditSink creates a database-backed audit sink.
func NewDatabaseAuditSink(db dbkit.IDB) *DatabaseAuditSink {
	return &DatabaseAuditSink{db: db}
}

// Write inserts one audit record.
func (s *DatabaseAuditSink) Write(ctx context.Context, rec *AuditRecord) error {
	result, err := s.db.NewInsert().Model(rec.toModel()).Exec(ctx)
	return dbkit.WithErr(result, err, "WriteAudit").Err()
}

// Query retrieves audit records matching the filter, newest first.
func (s *DatabaseAuditSink) Query(ctx context.Context, filter AuditFilter) ([]AuditRecord, error) {
	var models []AuditLogRecord
	q := s.db.NewSelect().Model(&models)
	if filter.Actor != "" {
		q = q.Where("actor = ?", filter.Actor)
	}
	if filter.Resource != "" {
		q = q.Where("resource = ?", filter.Resource)
	}
	if filter.ResourceID != "" {
		q = q.Where("resource_id = ?", filter.ResourceID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.Decision != "" {
		q = q.Where("decision = ?", filter.Decision)
	}
	if filter.RequestID != "" {
		q = q.Where("request_id = ?", filter.RequestID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("created_at <= ?", filter.Until)
	}

	limit := filter.Limit
	if limit == 0 {
		limit = 100 // Default limit
	}
	q = q.Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	q = q.Order("created_at DESC")
	err := dbkit.WithErr1(q.Scan(ctx), "QueryAudit").Err()
	if err != nil {
		return nil, err
	}

	records := make([]AuditRecord, len(models))
	for i := range models {
		records[i] = models[i].toRecord()
	}
	return records, nil
}

// FileAuditSink appends audit records as JSON lines to a local file and
// syncs after every write. It is the usual durable fallback sink.
type FileAuditSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileAuditSink opens (or creates) the file in append mode.
func NewFileAuditSink(path string) (*FileAuditSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, NewError(ErrConfiguration, fmt.Sprintf("cannot open audit fallback file: %v", err))
	}
	return &FileAuditSink{file: f}, nil
}

// Write appends one record as a JSON line and fsyncs.
func (s *FileAuditSink) Write(_ context.Context, rec *AuditRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		return err
	}
	return s.file.Sync()
}

// Close closes the underlying file.
func (s *FileAuditSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Emitter routes audit records to the primary sink, falling back to the
// durable sink when the primary fails. It never returns an error and never
// panics into the caller: an audit outage must not take request handling
// down with it.
type Emitter struct {
	primary  AuditSink
	fallback AuditSink
	monitor  *auditMonitor
	metrics  *engineMetrics

	mu     sync.RWMutex
	closed bool
	queue  chan *AuditRecord
	wg     sync.WaitGroup
}

// NewEmitter creates an emitter and starts its background worker.
// fallback may be nil; primary failures then count as lost immediately.
func NewEmitter(primary, fallback AuditSink, queueSize int) *Emitter {
	return newEmitter(primary, fallback, newEngineMetrics(), queueSize)
}

func newEmitter(primary, fallback AuditSink, metrics *engineMetrics, queueSize int) *Emitter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	e := &Emitter{
		primary:  primary,
		fallback: fallback,
		monitor:  newAuditMonitor(),
		metrics:  metrics,
		queue:    make(chan *AuditRecord, queueSize),
	}
	e.wg.Add(1)
	go e.worker()
	return e
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	// Request contexts are gone by the time queued records drain, so the
	// worker writes under a background context.
	for rec := range e.queue {
		e.Record(context.Background(), rec)
	}
}

// Record writes one audit record synchronously and reports where it landed.
// Missing ID and CreatedAt are filled in.
func (e *Emitter) Record(ctx context.Context, rec *AuditRecord) Outcome {
	start := time.Now()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	primaryErr := e.write(ctx, e.primary, rec)
	if primaryErr == nil {
		e.finish(start, OutcomePrimary, nil)
		return OutcomePrimary
	}

	log.Printf("policykit: primary audit sink failed, using fallback: %v", primaryErr)
	if e.fallback != nil {
		if err := e.write(ctx, e.fallback, rec); err == nil {
			e.finish(start, OutcomeFallback, primaryErr)
			return OutcomeFallback
		} else {
			log.Printf("policykit: fallback audit sink failed, record %s lost: %v", rec.ID, err)
		}
	} else {
		log.Printf("policykit: no fallback audit sink configured, record %s lost", rec.ID)
	}

	e.finish(start, OutcomeLost, primaryErr)
	return OutcomeLost
}

// RecordAsync queues the record for the background worker. When the queue
// is full or the emitter is closed it degrades to a synchronous write, so
// records are never silently dropped.
func (e *Emitter) RecordAsync(ctx context.Context, rec *AuditRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		e.Record(ctx, rec)
		return
	}
	select {
	case e.queue <- rec:
		e.mu.RUnlock()
	default:
		e.mu.RUnlock()
		e.Record(ctx, rec)
	}
}

// write shields the emitter from sink panics. A panicking sink is treated
// as a failed write.
func (e *Emitter) write(ctx context.Context, sink AuditSink, rec *AuditRecord) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("audit sink panic: %v", p)
		}
	}()
	return sink.Write(ctx, rec)
}

func (e *Emitter) finish(start time.Time, outcome Outcome, primaryErr error) {
	e.monitor.recordWrite(time.Since(start), outcome, primaryErr)
	if e.metrics != nil {
		e.metrics.recordAuditOutcome(outcome)
	}
}

// Query retrieves audit records through the primary sink.
func (e *Emitter) Query(ctx context.Context, filter AuditFilter) ([]AuditRecord, error) {
	querier, ok := e.primary.(AuditQuerier)
	if !ok {
		return nil, NewError(ErrConfiguration, "primary audit sink does not support queries")
	}
	return querier.Query(ctx, filter)
}

// Metrics returns the current audit pipeline metrics.
func (e *Emitter) Metrics() AuditMetrics {
	return e.monitor.getMetrics()
}

// ResetMetrics resets the audit pipeline metrics.
func (e *Emitter) ResetMetrics() {
	e.monitor.reset()
}

// IsHealthy reports whether any record has been lost since the last reset.
func (e *Emitter) IsHealthy() bool {
	return e.monitor.isHealthy()
}

// Close drains the queue and stops the worker. Records handed to
// RecordAsync after Close are written synchronously.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()
	e.wg.Wait()
}
