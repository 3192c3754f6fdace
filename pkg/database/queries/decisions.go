package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/tradefleet/fleet-autoscaler/pkg/models"
)

// DecisionRepository persists and reads back scaling decisions.
type DecisionRepository struct {
	db *sql.DB
}

func NewDecisionRepository(db *sql.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// SaveDecision writes one decision; replays of the same record key are
// ignored so the event logger can safely re-deliver.
func (r *DecisionRepository) SaveDecision(ctx context.Context, d *models.ScalingDecision) error {
	reasoning, _ := json.Marshal(d.Reasoning)
	ruleIDs, _ := json.Marshal(d.TriggeredRuleIDs)
	metricsUsed, _ := json.Marshal(d.MetricsUsed)

	query := `
		INSERT INTO scaling_decisions
			(record_key, service_id, timestamp, current_instances, recommended_instances,
			 action, urgency, confidence, reasoning, triggered_rule_ids, metrics_used,
			 approval_required, cooldown_active, is_emergency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (record_key) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		models.DecisionRecordKey(d),
		d.ServiceID,
		d.Timestamp,
		d.CurrentInstances,
		d.RecommendedInstances,
		string(d.Action),
		string(d.Urgency),
		d.Confidence,
		reasoning,
		ruleIDs,
		metricsUsed,
		d.ApprovalRequired,
		d.CooldownActive,
		d.IsEmergency,
	)
	return err
}

// GetByService returns the newest decisions first.
func (r *DecisionRepository) GetByService(ctx context.Context, serviceID string, limit int) ([]*models.ScalingDecision, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT service_id, timestamp, current_instances, recommended_instances,
			   action, urgency, confidence, reasoning, triggered_rule_ids, metrics_used,
			   approval_required, cooldown_active, is_emergency
		FROM scaling_decisions
		WHERE service_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, serviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// DecisionsBetween returns decisions in [start, end) across all services.
func (r *DecisionRepository) DecisionsBetween(ctx context.Context, start, end time.Time) ([]*models.ScalingDecision, error) {
	query := `
		SELECT service_id, timestamp, current_instances, recommended_instances,
			   action, urgency, confidence, reasoning, triggered_rule_ids, metrics_used,
			   approval_required, cooldown_active, is_emergency
		FROM scaling_decisions
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp ASC`

	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// Prune deletes decisions older than the retention window.
func (r *DecisionRepository) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM scaling_decisions WHERE timestamp < $1`,
		time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanDecisions(rows *sql.Rows) ([]*models.ScalingDecision, error) {
	var decisions []*models.ScalingDecision
	for rows.Next() {
		var (
			d                           models.ScalingDecision
			action, urgency             string
			reasoning, ruleIDs, metrics []byte
		)
		err := rows.Scan(
			&d.ServiceID, &d.Timestamp, &d.CurrentInstances, &d.RecommendedInstances,
			&action, &urgency, &d.Confidence, &reasoning, &ruleIDs, &metrics,
			&d.ApprovalRequired, &d.CooldownActive, &d.IsEmergency,
		)
		if err != nil {
			return nil, err
		}
		d.Action = models.ActionKind(action)
		d.Urgency = models.Urgency(urgency)
		json.Unmarshal(reasoning, &d.Reasoning)
		json.Unmarshal(ruleIDs, &d.TriggeredRuleIDs)
		json.Unmarshal(metrics, &d.MetricsUsed)
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}
