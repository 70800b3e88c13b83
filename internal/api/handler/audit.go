package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gcdisk/internal/api/schema"
	"github.com/faciam-dev/gcdisk/internal/audit"
	"github.com/faciam-dev/gcdisk/internal/logger"
	"github.com/faciam-dev/gcdisk/internal/rbac"
	sm "github.com/faciam-dev/gcdisk/internal/server/middleware"
)

// AuditLogs is the part of audit.Repo the handlers use.
type AuditLogs interface {
	List(ctx context.Context, f audit.Filter) ([]audit.Entry, string, error)
	Get(ctx context.Context, id int64) (audit.Entry, error)
}

type AuditHandler struct {
	Logs AuditLogs
}

type auditListParams struct {
	Limit      int    `query:"limit" minimum:"0" maximum:"200" doc:"Page size, 50 when omitted"`
	Cursor     string `query:"cursor" doc:"nextCursor of the previous page"`
	Action     string `query:"action" doc:"Comma separated actions, e.g. add,update"`
	Actor      string `query:"actor"`
	Resource   string `query:"resource" enum:"disk,role,"`
	ResourceID string `query:"resourceId"`
	From       string `query:"from" doc:"RFC 3339 lower bound"`
	To         string `query:"to" doc:"RFC 3339 upper bound, exclusive"`
}

type auditListOutput struct {
	Body struct {
		Items      []schema.AuditLog `json:"items"`
		NextCursor string            `json:"nextCursor,omitempty"`
	}
}

type auditPath struct {
	ID int64 `path:"id"`
}

type auditGetOutput struct {
	Body schema.AuditLog
}

type auditDiffOutput struct {
	Body schema.AuditDiff
}

func RegisterAudit(api huma.API, h *AuditHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "listAuditLogs",
		Method:      http.MethodGet,
		Path:        "/v1/audit-logs",
		Summary:     "List audit logs",
		Tags:        []string{"Audit"},
		Metadata:    sm.Require(rbac.AuditLogPolicy.MustPermission(rbac.ViewAny)),
	}, h.list)

	huma.Register(api, huma.Operation{
		OperationID: "getAuditLog",
		Method:      http.MethodGet,
		Path:        "/v1/audit-logs/{id}",
		Summary:     "Get audit log by ID",
		Tags:        []string{"Audit"},
		Metadata:    sm.Require(rbac.AuditLogPolicy.MustPermission(rbac.View)),
	}, h.get)

	huma.Register(api, huma.Operation{
		OperationID: "getAuditDiff",
		Method:      http.MethodGet,
		Path:        "/v1/audit-logs/{id}/diff",
		Summary:     "Get unified diff for an audit log",
		Tags:        []string{"Audit"},
		Metadata:    sm.Require(rbac.AuditLogPolicy.MustPermission(rbac.View)),
	}, h.diff)
}

func parseBound(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, huma.Error422UnprocessableEntity("invalid "+field, &huma.ErrorDetail{
			Location: "query." + field,
			Message:  "must be an RFC 3339 timestamp",
			Value:    v,
		})
	}
	return t, nil
}

func (h *AuditHandler) list(ctx context.Context, p *auditListParams) (*auditListOutput, error) {
	from, err := parseBound("from", p.From)
	if err != nil {
		return nil, err
	}
	to, err := parseBound("to", p.To)
	if err != nil {
		return nil, err
	}
	if p.Cursor != "" {
		if _, _, err := audit.DecodeCursor(p.Cursor); err != nil {
			return nil, huma.Error422UnprocessableEntity("invalid cursor", &huma.ErrorDetail{
				Location: "query.cursor",
				Message:  err.Error(),
				Value:    p.Cursor,
			})
		}
	}
	f := audit.Filter{
		Actor:      p.Actor,
		Resource:   p.Resource,
		ResourceID: p.ResourceID,
		From:       from,
		To:         to,
		Limit:      p.Limit,
		Cursor:     p.Cursor,
	}
	for _, a := range strings.Split(p.Action, ",") {
		if a = strings.TrimSpace(a); a != "" {
			f.Actions = append(f.Actions, a)
		}
	}
	entries, next, err := h.Logs.List(ctx, f)
	if err != nil {
		logger.L.Error("list audit logs", "err", err)
		return nil, err
	}
	out := &auditListOutput{}
	out.Body.Items = make([]schema.AuditLog, 0, len(entries))
	for _, e := range entries {
		out.Body.Items = append(out.Body.Items, toAuditSchema(e))
	}
	out.Body.NextCursor = next
	return out, nil
}

func (h *AuditHandler) get(ctx context.Context, p *auditPath) (*auditGetOutput, error) {
	e, err := h.Logs.Get(ctx, p.ID)
	if err != nil {
		return nil, mapErr(err)
	}
	return &auditGetOutput{Body: toAuditSchema(e)}, nil
}

func (h *AuditHandler) diff(ctx context.Context, p *auditPath) (*auditDiffOutput, error) {
	e, err := h.Logs.Get(ctx, p.ID)
	if err != nil {
		return nil, mapErr(err)
	}
	unified, add, del := audit.UnifiedDiff("before", "after", []byte(e.Before.String), []byte(e.After.String))
	return &auditDiffOutput{Body: schema.AuditDiff{Unified: unified, Added: add, Removed: del}}, nil
}

func toAuditSchema(e audit.Entry) schema.AuditLog {
	add, del := e.Changes()
	l := schema.AuditLog{
		ID:         e.ID,
		Actor:      e.Actor,
		Action:     e.Action,
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		AppliedAt:  e.AppliedAt,
		Summary:    fmt.Sprintf("+%d -%d", add, del),
		DiffURL:    fmt.Sprintf("/v1/audit-logs/%d/diff", e.ID),
	}
	if e.Before.Valid && json.Valid([]byte(e.Before.String)) {
		l.Before = json.RawMessage(e.Before.String)
	}
	if e.After.Valid && json.Valid([]byte(e.After.String)) {
		l.After = json.RawMessage(e.After.String)
	}
	return l
}
