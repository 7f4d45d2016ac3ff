// Package audit records administrative actions in the activity log.
package audit

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/mytheresa/go-storefront/internal/ratelimit"
	"github.com/mytheresa/go-storefront/internal/web"
	"github.com/mytheresa/go-storefront/models"
)

// Actions written to the log.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Targets written to the log.
const (
	TargetProduct  = "product"
	TargetCategory = "category"
	TargetTag      = "tag"
	TargetUser     = "user"
)

type Store interface {
	Record(ctx context.Context, entry *models.ActivityLog) error
}

// Recorder attributes actions to the admin of the current request.
type Recorder struct {
	store Store
	log   *zap.Logger
}

func NewRecorder(store Store, log *zap.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

// Record writes one entry for a mutation that has already happened. A failed write is logged,
// not returned.
func (rec *Recorder) Record(r *http.Request, action, target string, targetID uint, details string) {
	entry := &models.ActivityLog{
		Action:     action,
		TargetType: target,
		TargetID:   targetID,
		Details:    details,
		IPAddress:  ratelimit.ClientIP(r),
	}
	if admin := web.CurrentUser(r.Context()); admin != nil {
		entry.AdminID = admin.ID
		entry.AdminName = admin.Username
	}

	if err := rec.store.Record(r.Context(), entry); err != nil {
		rec.log.Error("failed to record admin activity",
			zap.String("action", action),
			zap.String("target", target),
			zap.Uint("target_id", targetID),
			zap.Error(err),
		)
		return
	}

	rec.log.Info("admin activity",
		zap.Uint("admin_id", entry.AdminID),
		zap.String("action", action),
		zap.String("target", target),
		zap.Uint("target_id", targetID),
	)
}
