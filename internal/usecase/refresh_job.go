package usecase

import (
	"context"
	"fmt"
	"time"

	applogger "Indicium/pkg/logger"
	"Indicium/pkg/queue"
)

// RefreshJobType is the queue message type for on-demand refreshes.
const RefreshJobType = "refresh.run"

// RefreshRequest is the payload of a refresh.run message.
type RefreshRequest struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// RefreshJob runs the refresher for queued refresh requests.
// A run that ends on fallback data is reported as an error so the queue retries it.
type RefreshJob struct {
	refresher *Refresher
	logger    *applogger.Logger
}

var _ queue.Job = (*RefreshJob)(nil)

func NewRefreshJob(r *Refresher, logger *applogger.Logger) *RefreshJob {
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &RefreshJob{refresher: r, logger: logger}
}

func (j *RefreshJob) Name() string { return "refresh-snapshot" }
func (j *RefreshJob) Type() string { return RefreshJobType }

func (j *RefreshJob) Handle(ctx context.Context, msg queue.Message) error {
	req, err := queue.ParsePayload[RefreshRequest](msg)
	if err != nil {
		// A malformed request is still a request to refresh.
		j.logger.Warn("refresh request payload ignored", applogger.Error(err))
		req = &RefreshRequest{}
	}

	res, ran := j.refresher.TriggerNow(ctx)
	if !ran {
		j.logger.Info("refresh already running, request satisfied",
			applogger.String("requested_by", req.RequestedBy))
		return nil
	}
	if ctx.Err() != nil && res.Error == ErrRefreshCancelled.Error() {
		// Left on the queue for the next worker.
		return fmt.Errorf("on-demand refresh: %w", ErrRefreshCancelled)
	}
	if !res.Success {
		return fmt.Errorf("refresh served %s data: %s", res.Source, res.Error)
	}
	j.logger.Info("on-demand refresh completed",
		applogger.String("requested_by", req.RequestedBy),
		applogger.Int("signals", res.SignalsCount))
	return nil
}

// RequestRefresh enqueues a refresh.run message.
func RequestRefresh(ctx context.Context, pub queue.Publisher, requestedBy string, now time.Time) error {
	return pub.Enqueue(ctx, RefreshJobType, RefreshRequest{RequestedBy: requestedBy, RequestedAt: now.UTC()})
}
