// Package auditlog appends tamper-evident records of registry mutations.
//
// Events about the same resource form a hash chain: each record's digest
// covers the digest of the record before it, so editing or deleting a row
// breaks Verify for every later row of that resource.
package auditlog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrChainBroken = errors.New("audit chain broken")

// Event is a mutation about to be recorded.
type Event struct {
	OccurredAt   time.Time
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	RequestID    string
	Host         string
	Payload      any
}

// Record is a stored event.
type Record struct {
	ID           int64
	OccurredAt   time.Time
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	RequestID    string
	Host         string
	Payload      json.RawMessage
	PrevDigest   string
	Digest       string
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (e Event) Validate() error {
	switch {
	case e.OccurredAt.IsZero():
		return errors.New("audit event time is required")
	case strings.TrimSpace(e.Actor) == "":
		return errors.New("audit actor is required")
	case strings.TrimSpace(e.Action) == "":
		return errors.New("audit action is required")
	case strings.TrimSpace(e.ResourceType) == "", strings.TrimSpace(e.ResourceID) == "":
		return errors.New("audit resource is required")
	}
	return nil
}

// Append stores event at the end of its resource's chain.
func Append(ctx context.Context, q Querier, event Event) (Record, error) {
	if q == nil {
		return Record{}, errors.New("audit querier is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := event.Validate(); err != nil {
		return Record{}, err
	}
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal audit payload: %w", err)
	}

	rec := Record{
		OccurredAt:   time.UnixMilli(event.OccurredAt.UnixMilli()).UTC(),
		Actor:        strings.TrimSpace(event.Actor),
		Action:       strings.TrimSpace(event.Action),
		ResourceType: strings.TrimSpace(event.ResourceType),
		ResourceID:   strings.TrimSpace(event.ResourceID),
		RequestID:    strings.TrimSpace(event.RequestID),
		Host:         strings.TrimSpace(event.Host),
		Payload:      payloadJSON,
	}
	rec.PrevDigest, err = lastDigest(ctx, q, rec.ResourceType, rec.ResourceID)
	if err != nil {
		return Record{}, err
	}
	rec.Digest = Digest(rec)

	err = q.QueryRowContext(
		ctx,
		`INSERT INTO audit_events (
			occurred_at, actor, action, resource_type, resource_id,
			request_id, host, payload, prev_sha256, integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING event_id`,
		rec.OccurredAt.UnixMilli(),
		rec.Actor,
		rec.Action,
		rec.ResourceType,
		rec.ResourceID,
		rec.RequestID,
		rec.Host,
		string(rec.Payload),
		rec.PrevDigest,
		rec.Digest,
	).Scan(&rec.ID)
	if err != nil {
		return Record{}, fmt.Errorf("insert audit event: %w", err)
	}
	return rec, nil
}

// History returns a resource's records oldest first.
func History(ctx context.Context, q Querier, resourceType, resourceID string) ([]Record, error) {
	rows, err := q.QueryContext(
		ctx,
		`SELECT event_id, occurred_at, actor, action, resource_type, resource_id,
			request_id, host, payload, prev_sha256, integrity_sha256
		FROM audit_events
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY event_id`,
		resourceType,
		resourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		var occurred int64
		var payload string
		if err := rows.Scan(
			&rec.ID, &occurred, &rec.Actor, &rec.Action, &rec.ResourceType, &rec.ResourceID,
			&rec.RequestID, &rec.Host, &payload, &rec.PrevDigest, &rec.Digest,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		rec.OccurredAt = time.UnixMilli(occurred).UTC()
		rec.Payload = json.RawMessage(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Verify checks that records, oldest first, form an unbroken chain.
func Verify(records []Record) error {
	prev := ""
	for i, rec := range records {
		if rec.PrevDigest != prev {
			return fmt.Errorf("%w: event %d does not follow %q", ErrChainBroken, rec.ID, prev)
		}
		if Digest(rec) != rec.Digest {
			return fmt.Errorf("%w: event %d digest mismatch at position %d", ErrChainBroken, rec.ID, i)
		}
		prev = rec.Digest
	}
	return nil
}

// Digest hashes rec's content together with its predecessor's digest.
// Payload is compacted first so equivalent JSON hashes equally.
func Digest(rec Record) string {
	var payload bytes.Buffer
	if err := json.Compact(&payload, rec.Payload); err != nil {
		payload.Reset()
		payload.Write(rec.Payload)
	}
	h := sha256.New()
	for _, field := range []string{
		rec.PrevDigest,
		rec.OccurredAt.UTC().Format(time.RFC3339Nano),
		rec.Actor,
		rec.Action,
		rec.ResourceType,
		rec.ResourceID,
		rec.RequestID,
		rec.Host,
		payload.String(),
	} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func lastDigest(ctx context.Context, q Querier, resourceType, resourceID string) (string, error) {
	var digest string
	err := q.QueryRowContext(
		ctx,
		`SELECT integrity_sha256 FROM audit_events
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY event_id DESC LIMIT 1`,
		resourceType,
		resourceID,
	).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read audit chain head: %w", err)
	}
	return digest, nil
}
