// Package audit records provisioning events to a durable trail: a
// Postgres table, a tamper-evident file journal, and optionally an
// Elasticsearch index for search. Recording is best-effort; a failed
// sink is logged and never surfaces to the caller.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scimgate/scimgate/internal/common/database"
	"github.com/scimgate/scimgate/pkg/journal"
)

// Outcome of a recorded provisioning operation.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one provisioning operation as recorded in the audit trail.
type Event struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Resource   string                 `json:"resource"`
	Action     string                 `json:"action"`
	ResourceID string                 `json:"resource_id,omitempty"`
	ActorID    string                 `json:"actor_id,omitempty"`
	Outcome    string                 `json:"outcome"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
}

// Recorder fans a provisioning event out to the configured sinks.
type Recorder struct {
	db        *database.PostgresDB
	journal   journal.Journal
	es        *database.ElasticsearchClient
	indexName string
	logger    *zap.Logger
}

// NewRecorder creates a recorder. db and es may be nil; a nil sink is
// skipped.
func NewRecorder(db *database.PostgresDB, jrnl journal.Journal, es *database.ElasticsearchClient, indexName string, logger *zap.Logger) *Recorder {
	return &Recorder{
		db:        db,
		journal:   jrnl,
		es:        es,
		indexName: indexName,
		logger:    logger,
	}
}

// Record persists an event to every configured sink. Missing id and
// timestamp are filled in.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	r.recordPostgres(ctx, &event)
	r.recordJournal(&event)
	r.recordElasticsearch(&event)
}

func (r *Recorder) recordPostgres(ctx context.Context, event *Event) {
	if r.db == nil {
		return
	}

	detail, err := json.Marshal(event.Detail)
	if err != nil {
		detail = []byte("{}")
	}

	query := `
		INSERT INTO provisioning_events (id, occurred_at, resource, action, resource_id, actor_id, outcome, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, query,
		event.ID, event.Timestamp, event.Resource, event.Action,
		nullable(event.ResourceID), nullable(event.ActorID), event.Outcome, detail,
	); err != nil {
		r.logger.Error("failed to persist audit event",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

func (r *Recorder) recordJournal(event *Event) {
	if r.journal == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("failed to encode audit event", zap.Error(err))
		return
	}
	if _, err := r.journal.Append(payload); err != nil {
		r.logger.Error("failed to journal audit event",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

func (r *Recorder) recordElasticsearch(event *Event) {
	if r.es == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := r.es.Index(r.indexName, event.ID, payload); err != nil {
		r.logger.Warn("failed to index audit event",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
