// Package decision persists the sanitized audit trail: one decision_log row
// per successful pipeline run. Raw bodies, signatures, and auth headers
// never reach this layer.
package decision

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hookgate/hookgate/internal/webhook"
)

var ErrNotFound = errors.New("decision not found")

// Record is the persisted projection of one decision.
type Record struct {
	ExecutionRef        string          `json:"execution_ref"`
	Connector           string          `json:"connector"`
	DecisionType        string          `json:"decision_type"`
	InputsHash          string          `json:"inputs_hash"`
	EventType           string          `json:"event_type,omitempty"`
	Outputs             json.RawMessage `json:"outputs"`
	ConfidenceScore     float64         `json:"confidence_score"`
	AuthAssurance       string          `json:"auth_assurance"`
	PayloadCompleteness float64         `json:"payload_completeness"`
	SchemaValidation    bool            `json:"schema_validation"`
	ConstraintsApplied  json.RawMessage `json:"constraints_applied"`
	Path                string          `json:"path"`
	ContentType         string          `json:"content_type,omitempty"`
	SourceIPHash        string          `json:"source_ip_hash,omitempty"`
	ReceivedAt          time.Time       `json:"received_at"`
	SignatureValid      bool            `json:"signature_valid"`
	SchemaValid         bool            `json:"schema_valid"`
	ErrorCount          int             `json:"error_count"`
	DecidedAt           string          `json:"decided_at"`
	CreatedAt           time.Time       `json:"created_at"`
}

// Store writes and reads decision_log rows. It implements webhook.Sink.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts one decision row.
func (s *Store) Record(ctx context.Context, d *webhook.Decision) error {
	if d == nil || d.Event == nil {
		return fmt.Errorf("decision is nil")
	}

	outputs, err := json.Marshal(d.Event.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	constraints, err := json.Marshal(d.Event.ConstraintsApplied)
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO decision_log(
  execution_ref, connector, decision_type, inputs_hash, event_type, outputs,
  confidence_score, auth_assurance, payload_completeness, schema_validation,
  constraints_applied, path, content_type, source_ip_hash, received_at,
  signature_valid, schema_valid, error_count, decided_at, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		d.Event.ExecutionRef, d.Connector, d.Event.DecisionType, d.Event.InputsHash,
		d.Event.Outputs.EventType, string(outputs),
		d.Event.Confidence.Score, d.Event.Confidence.AuthAssurance,
		d.Event.Confidence.PayloadCompleteness, d.Event.Confidence.SchemaValidation,
		string(constraints), d.Path, d.ContentType, d.SourceIPHash,
		d.ReceivedAt.UTC().Format(time.RFC3339Nano),
		d.SignatureValid, d.SchemaValid, d.ErrorCount,
		d.Event.Timestamp, now,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// List returns the most recent decisions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT execution_ref, connector, decision_type, inputs_hash, event_type, outputs,
       confidence_score, auth_assurance, payload_completeness, schema_validation,
       constraints_applied, path, content_type, source_ip_hash, received_at,
       signature_valid, schema_valid, error_count, decided_at, created_at
FROM decision_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetByRef loads a single decision by its execution reference.
func (s *Store) GetByRef(ctx context.Context, ref string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT execution_ref, connector, decision_type, inputs_hash, event_type, outputs,
       confidence_score, auth_assurance, payload_completeness, schema_validation,
       constraints_applied, path, content_type, source_ip_hash, received_at,
       signature_valid, schema_valid, error_count, decided_at, created_at
FROM decision_log
WHERE execution_ref = ?;
`, ref)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// Count returns the total number of persisted decisions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decision_log;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count decisions: %w", err)
	}
	return n, nil
}

func scanRecord(scan func(...any) error) (*Record, error) {
	var (
		rec         Record
		eventType   sql.NullString
		outputs     string
		constraints string
		contentType sql.NullString
		sourceHash  sql.NullString
		receivedAt  string
		createdAt   string
	)
	err := scan(
		&rec.ExecutionRef, &rec.Connector, &rec.DecisionType, &rec.InputsHash,
		&eventType, &outputs,
		&rec.ConfidenceScore, &rec.AuthAssurance, &rec.PayloadCompleteness, &rec.SchemaValidation,
		&constraints, &rec.Path, &contentType, &sourceHash, &receivedAt,
		&rec.SignatureValid, &rec.SchemaValid, &rec.ErrorCount, &rec.DecidedAt, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan decision: %w", err)
	}

	rec.EventType = eventType.String
	rec.Outputs = json.RawMessage(outputs)
	rec.ConstraintsApplied = json.RawMessage(constraints)
	rec.ContentType = contentType.String
	rec.SourceIPHash = sourceHash.String
	if t, err := time.Parse(time.RFC3339Nano, receivedAt); err == nil {
		rec.ReceivedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	}
	return &rec, nil
}
