package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/climatequery/engine/internal/common"
	"github.com/climatequery/engine/internal/logger"
	"github.com/climatequery/engine/internal/types"
	"github.com/climatequery/engine/internal/types/interfaces"
)

// FeedbackTaskType names the asynq task type a submitted FeedbackRecord is
// enqueued under.
const FeedbackTaskType = "feedback:persist"

// NewFeedbackTask builds the asynq task for one feedback submission.
func NewFeedbackTask(record types.FeedbackRecord) (*asynq.Task, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode feedback task payload: %w", err)
	}
	return asynq.NewTask(FeedbackTaskType, payload), nil
}

// RegisterFeedbackHandler wires the worker-side handler that persists a
// dequeued FeedbackRecord via the given CacheStore's PutFeedback. This is
// what makes put_feedback "never block the request path" more than a
// convention: the HTTP handler only ever enqueues, and this
// handler runs on the asynq worker goroutine, off the request path
// entirely.
func RegisterFeedbackHandler(store interfaces.CacheStore) {
	common.RegisterHandlerFunc(FeedbackTaskType, func(ctx context.Context, task *asynq.Task) error {
		var record types.FeedbackRecord
		if err := json.Unmarshal(task.Payload(), &record); err != nil {
			return fmt.Errorf("decode feedback task payload: %w", err)
		}
		if err := store.PutFeedback(ctx, record); err != nil {
			logger.GetLogger(ctx).Warnf("feedback persist failed for request %s: %v", record.RequestID, err)
			return err
		}
		return nil
	})
}
