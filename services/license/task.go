package license

import (
	"context"
	"net/http"

	"licensegate/pkg/errutil"
	"licensegate/pkg/task"
	"licensegate/pkg/taskname"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var TaskModule = fx.Module("license.tasks",
	fx.Invoke(RegisterTasks),
)

func RegisterTasks(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.LicenseExpiryRun, svc.HandleExpiryRun)
}

func (s *Service) HandleExpiryRun(ctx context.Context, t *asynq.Task) error {
	_, err := s.ExpireDue(ctx)
	return err
}

// ExpiryTrigger lets operators enqueue the expiry sweep on demand instead of
// waiting for the hourly schedule.
type ExpiryTrigger struct {
	enqueuer task.Enqueuer
}

type ExpiryTriggerParams struct {
	fx.In
	Enqueuer task.Enqueuer
}

func NewExpiryTrigger(p ExpiryTriggerParams) *ExpiryTrigger {
	return &ExpiryTrigger{enqueuer: p.Enqueuer}
}

func (h *ExpiryTrigger) Run(c *gin.Context) {
	info, err := h.enqueuer.Enqueue(asynq.NewTask(taskname.LicenseExpiryRun, nil))
	if err != nil {
		_ = c.Error(errutil.Internal("failed to enqueue expiry sweep", errutil.WithErr(err)))
		return
	}

	zap.L().Info("expiry sweep enqueued", zap.String("task_id", info.ID))

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": info.ID,
		"queue":   info.Queue,
	})
}
