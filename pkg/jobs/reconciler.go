// Package jobs runs the scheduled background work. The only job today is
// the provisioning reconciler, which re-drives identity-provider role and
// group assignments that failed best-effort during user creation.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/timeledger/timeledger/pkg/metrics"
	"github.com/timeledger/timeledger/pkg/model"
)

type UserStore interface {
	ListPendingProvisioning(ctx context.Context) ([]model.User, error)
	UpdateProvisioningStatus(ctx context.Context, id uuid.UUID, status model.ProvisioningStatus) error
}

type IdentityClient interface {
	AssignRole(ctx context.Context, externalID, role string) error
	AddToGroup(ctx context.Context, externalID, group string) error
}

type Reconciler struct {
	cron     *cron.Cron
	schedule string
	users    UserStore
	idp      IdentityClient
	logger   *zap.Logger
}

func NewReconciler(schedule string, users UserStore, idp IdentityClient, logger *zap.Logger) *Reconciler {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)
	return &Reconciler{
		cron:     c,
		schedule: schedule,
		users:    users,
		idp:      idp,
		logger:   logger,
	}
}

func (r *Reconciler) Start() error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		r.runWithRecovery("provisioning_reconcile", r.Run)
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

func (r *Reconciler) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

func (r *Reconciler) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("job panicked", zap.String("job", jobName), zap.Any("panic", rec))
		}
	}()

	r.logger.Info("starting job", zap.String("job", jobName))
	jobFunc()
	r.logger.Info("job completed", zap.String("job", jobName))
}

// Run reconciles every user whose provisioning is incomplete. A user stuck
// in pending_role_sync retries both role and group assignment; one stuck in
// pending_group_sync retries the group only.
func (r *Reconciler) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pending, err := r.users.ListPendingProvisioning(ctx)
	if err != nil {
		r.logger.Error("failed to list pending provisioning", zap.Error(err))
		return
	}
	metrics.ProvisioningPending.Set(float64(len(pending)))

	for i := range pending {
		user := &pending[i]
		r.reconcileUser(ctx, user)
	}
}

func (r *Reconciler) reconcileUser(ctx context.Context, user *model.User) {
	status := user.ProvisioningStatus

	if status == model.ProvisioningPendingRoleSync {
		if err := r.idp.AssignRole(ctx, user.ExternalID, string(user.Role)); err != nil {
			r.logger.Warn("role sync still failing",
				zap.String("user_id", user.ID.String()),
				zap.Error(err))
			return
		}
		status = model.ProvisioningPendingGroupSync
		if err := r.users.UpdateProvisioningStatus(ctx, user.ID, status); err != nil {
			r.logger.Error("failed to persist provisioning status", zap.Error(err))
			return
		}
	}

	if status == model.ProvisioningPendingGroupSync {
		group := ""
		if user.Organization != nil {
			group = user.Organization.Domain
		}
		if err := r.idp.AddToGroup(ctx, user.ExternalID, group); err != nil {
			r.logger.Warn("group sync still failing",
				zap.String("user_id", user.ID.String()),
				zap.Error(err))
			return
		}
		if err := r.users.UpdateProvisioningStatus(ctx, user.ID, model.ProvisioningSynced); err != nil {
			r.logger.Error("failed to persist provisioning status", zap.Error(err))
			return
		}
		r.logger.Info("user provisioning reconciled", zap.String("user_id", user.ID.String()))
	}
}
