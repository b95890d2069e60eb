package resultpush

import (
	"context"
	"errors"
	"time"

	"cageside/internal/resultpush/platforms"

	"github.com/rs/zerolog/log"
)

var errCircuitOpen = errors.New("circuit_open")

type panelForgetter interface {
	ForgetPanel(endpoint, panelKey string)
}

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case job := <-m.dispatchCh:
			metricPushQueueLen.Set(int64(len(m.dispatchCh)))
			m.processJob(ctx, job)
		}
	}
}

func (m *Manager) processJob(ctx context.Context, job pushJob) {
	adapter := m.adapters[job.Target.Platform]
	if adapter == nil {
		metricPushDroppedTotal.Add(1)
		return
	}
	if err := m.beforeSend(job.key(), time.Now()); err != nil {
		metricPushCircuitOpenTotal.Add(1)
		m.retryOrDrop(job, err)
		return
	}

	err := adapter.Send(ctx, job.Target.Endpoint, job.Target.Secret, toPlatformMessage(job.Formatted))
	if err != nil {
		metricPushFailedTotal.Add(1)
		m.afterFailure(job.key(), time.Now())
		m.retryOrDrop(job, err)
		return
	}
	metricPushSentTotal.Add(1)
	m.afterSuccess(job.key())
	if job.Terminal {
		if f, ok := adapter.(panelForgetter); ok {
			f.ForgetPanel(job.Target.Endpoint, job.Formatted.PanelKey)
		}
	}
}

// retryOrDrop schedules the next attempt after RetryBase*2^(attempt-1).
func (m *Manager) retryOrDrop(job pushJob, err error) bool {
	if job.Attempt >= m.cfg.RetryMax {
		metricPushRetryDroppedTotal.Add(1)
		log.Warn().Err(err).
			Str("platform", job.Target.Platform).
			Str("bout_id", job.Event.BoutID).
			Str("event_type", job.Event.EventType).
			Int("attempts", job.Attempt+1).
			Msg("result_push_dropped")
		return false
	}
	job.Attempt++
	metricPushRetryTotal.Add(1)
	m.retryQ.Enqueue(job, m.retryDelay(job.Attempt))
	return true
}

func (m *Manager) retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return m.cfg.RetryBase * time.Duration(1<<(attempt-1))
}

func (m *Manager) beforeSend(key string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.breakerByKey[key]
	if !state.openUntil.IsZero() && now.Before(state.openUntil) {
		return errCircuitOpen
	}
	return nil
}

// afterFailure opens the breaker for CircuitOpenDuration once
// FailureThreshold consecutive sends have failed.
func (m *Manager) afterFailure(key string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.breakerByKey[key]
	state.consecutiveFailures++
	if state.consecutiveFailures >= m.cfg.FailureThreshold {
		state.openUntil = now.Add(m.cfg.CircuitOpenDuration)
		state.consecutiveFailures = 0
	}
	m.breakerByKey[key] = state
}

func (m *Manager) afterSuccess(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerByKey[key] = breakerState{}
}

func toPlatformMessage(msg FormattedMessage) platforms.Message {
	fields := make([]platforms.Field, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, platforms.Field{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return platforms.Message{
		PanelKey:    msg.PanelKey,
		Title:       msg.Title,
		Content:     msg.Content,
		Description: msg.Description,
		Color:       msg.Color,
		Timestamp:   msg.Timestamp,
		Footer:      msg.Footer,
		Fields:      fields,
		Payload:     msg.Payload,
	}
}
