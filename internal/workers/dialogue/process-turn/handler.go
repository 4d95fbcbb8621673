package processturn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "dialog-manager/internal/common/errors"
	"dialog-manager/internal/common/logger"
	"dialog-manager/internal/common/metrics"
	"dialog-manager/internal/common/validation"
	"dialog-manager/internal/dialogue"
)

const TaskType = "dialogue-turn"

var inputValidator = validation.MustCompile(inputSchema)

// Processor runs one dialogue turn. *dialogue.Engine implements it.
type Processor interface {
	Process(ctx context.Context, turn dialogue.Turn) (*dialogue.Result, error)
}

type Handler struct {
	config    *Config
	processor Processor
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, processor Processor, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		processor: processor,
		errors:    apperrors.NewErrorHandler(log),
		logger:    log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput([]byte(job.Variables))
	if err == nil {
		var output *Output
		if output, err = h.Execute(ctx, input); err == nil {
			h.completeJob(ctx, client, job, output)
			metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
			metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
			return
		}
	}

	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(apperrors.Normalize(err).Code)).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
	h.errors.HandleJobError(ctx, client, job, err)
}

// Execute runs the turn. A retryable failure is returned so the job is
// retried with the session untouched; anything else completes the job with
// the fallback reply the engine produced.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	res, err := h.processor.Process(ctx, dialogue.Turn{SessionID: input.SessionID, Message: input.Message})
	if err != nil {
		if apperrors.IsRetryable(err) || res == nil {
			return nil, err
		}
		h.logger.Warn("turn failed, completing with fallback", map[string]interface{}{
			"sessionId": res.SessionID,
			"error":     err.Error(),
		})
	}

	out := &Output{
		SessionID: res.SessionID,
		Response:  res.Response,
		Policy:    res.Policy,
		Action:    res.Action,
		Terminal:  res.Response.Terminal(),
	}
	if res.Intent != nil {
		out.Intent = res.Intent.Name
	}
	return out, nil
}

func parseInput(raw []byte) (*Input, error) {
	result, err := inputValidator.ValidateJSON(raw)
	if err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	if !result.Valid {
		return nil, apperrors.NewInvalidInputError(result.Error())
	}

	var input Input
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("parse input: %v", err))
	}
	return &input, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
		return
	}

	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("Failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err.Error(),
		})
	}
}
