package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// EventRepository persists and reads back executed scaling events.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) SaveScalingEvent(ctx context.Context, e *models.ScalingEvent) error {
	warnings, _ := json.Marshal(e.Warnings)
	snapshot, _ := json.Marshal(e.MetricsSnapshot)
	ruleIDs, _ := json.Marshal(e.TriggeredRuleIDs)

	query := `
		INSERT INTO scaling_events
			(record_key, event_id, service_id, timestamp, action, previous_instances,
			 new_instances, success, duration_ms, error, warnings, metrics_snapshot,
			 rule_summary, triggered_rule_ids, confidence, urgency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (record_key) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		e.RecordKey(),
		e.EventID,
		e.ServiceID,
		e.Timestamp,
		string(e.Action),
		e.PreviousInstances,
		e.NewInstances,
		e.Success,
		e.DurationMs,
		nullable(e.Error),
		warnings,
		snapshot,
		nullable(e.RuleSummary),
		ruleIDs,
		e.Confidence,
		string(e.Urgency),
	)
	return err
}

// GetByService returns the newest events first.
func (r *EventRepository) GetByService(ctx context.Context, serviceID string, limit int) ([]*models.ScalingEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := selectEvents + `
		WHERE service_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, serviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// EventsBetween returns events in [start, end) across all services.
func (r *EventRepository) EventsBetween(ctx context.Context, start, end time.Time) ([]*models.ScalingEvent, error) {
	query := selectEvents + `
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp ASC`

	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Prune deletes events older than the retention window.
func (r *EventRepository) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM scaling_events WHERE timestamp < $1`,
		time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectEvents = `
	SELECT event_id, service_id, timestamp, action, previous_instances, new_instances,
		   success, duration_ms, error, warnings, metrics_snapshot, rule_summary,
		   triggered_rule_ids, confidence, urgency
	FROM scaling_events`

func scanEvents(rows *sql.Rows) ([]*models.ScalingEvent, error) {
	var events []*models.ScalingEvent
	for rows.Next() {
		var (
			e                           models.ScalingEvent
			action, urgency             string
			errMsg, ruleSummary         sql.NullString
			warnings, snapshot, ruleIDs []byte
		)
		err := rows.Scan(
			&e.EventID, &e.ServiceID, &e.Timestamp, &action, &e.PreviousInstances,
			&e.NewInstances, &e.Success, &e.DurationMs, &errMsg, &warnings, &snapshot,
			&ruleSummary, &ruleIDs, &e.Confidence, &urgency,
		)
		if err != nil {
			return nil, err
		}
		e.Action = models.ActionKind(action)
		e.Urgency = models.Urgency(urgency)
		e.Error = errMsg.String
		e.RuleSummary = ruleSummary.String
		json.Unmarshal(warnings, &e.Warnings)
		json.Unmarshal(snapshot, &e.MetricsSnapshot)
		json.Unmarshal(ruleIDs, &e.TriggeredRuleIDs)
		events = append(events, &e)
	}
	return events, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
