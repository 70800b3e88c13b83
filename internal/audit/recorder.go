// Package audit records changes to disks and roles.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/faciam-dev/gcdisk/internal/logger"
	"github.com/faciam-dev/gcdisk/internal/metrics"
	"github.com/faciam-dev/gcdisk/pkg/util"
)

const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Recorder writes audit logs to the database.
type Recorder struct {
	DB          *sql.DB
	Driver      string // mysql or postgres
	TablePrefix string
}

// Action derives the action from which side of the change is present.
func Action(before, after any) string {
	switch {
	case isNil(before) && !isNil(after):
		return ActionAdd
	case !isNil(before) && isNil(after):
		return ActionDelete
	default:
		return ActionUpdate
	}
}

// Write records a single change of resource id. before is nil for
// creations and after is nil for deletions.
func (r *Recorder) Write(ctx context.Context, actor, resource, id string, before, after any) error {
	if r == nil || r.DB == nil {
		return nil
	}
	action := Action(before, after)
	beforeArg, err := marshal(before)
	if err != nil {
		return err
	}
	afterArg, err := marshal(after)
	if err != nil {
		return err
	}
	q := util.Rebind(r.Driver, fmt.Sprintf(
		"INSERT INTO %saudit_logs(actor, action, resource, resource_id, before_json, after_json) VALUES (?,?,?,?,?,?)",
		r.TablePrefix))
	if _, err := r.DB.ExecContext(ctx, q, actor, action, resource, id, beforeArg, afterArg); err != nil {
		metrics.AuditErrors.WithLabelValues(action).Inc()
		logger.L.Error("write audit log", "resource", resource, "id", id, "err", err)
		return err
	}
	metrics.AuditEvents.WithLabelValues(action).Inc()
	return nil
}

func marshal(v any) (any, error) {
	if isNil(v) {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	b, err := json.Marshal(v)
	return err == nil && string(b) == "null"
}
