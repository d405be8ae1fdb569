package api

import (
	"context"
	"log"
	"time"
)

// Meter is the spend guard consulted before every model call.
type Meter interface {
	Charge(amount float64) bool
	Adjust(delta float64)
}

// metered wraps a Completer so each call is charged against a Meter up
// front and reconciled with the reported usage afterwards.
type metered struct {
	completer Completer
	meter     Meter
	model     string
	maxTokens int64
	timeout   time.Duration
}

// call returns ok=false without calling the model when the meter refuses.
// A failed call keeps its estimated charge.
func (m *metered) call(ctx context.Context, prompt string) (*Completion, bool, error) {
	estimate := EstimateCost(m.model, prompt, m.maxTokens)
	if !m.meter.Charge(estimate) {
		return nil, false, nil
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	resp, err := m.completer.Complete(ctx, prompt, m.maxTokens)
	if err != nil {
		return nil, true, err
	}

	model := resp.Model
	if model == "" {
		model = m.model
	}
	actual := Cost(model, resp.InputTokens, resp.OutputTokens)
	m.meter.Adjust(actual - estimate)
	log.Printf("[api] %s call: %d in / %d out tokens, $%.6f", model, resp.InputTokens, resp.OutputTokens, actual)

	return resp, true, nil
}
