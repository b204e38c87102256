package dialogue

import (
	"context"

	"chatflow-backend/application/ports"
	"chatflow-backend/domain/flow"

	"go.uber.org/zap"
)

// Matcher finds the flow a free-text message should start.
type Matcher struct {
	flows  ports.FlowStore
	logger *zap.Logger
}

// NewMatcher creates a flow matcher.
func NewMatcher(flows ports.FlowStore, logger *zap.Logger) *Matcher {
	return &Matcher{flows: flows, logger: logger}
}

// Match scans the tenant's flows for a trigger hit. The winner is the
// flow with the longest matching keyword; among equal lengths the
// lexically smallest flow id wins, so the result never depends on
// storage order. nil with no error means no flow matched.
func (m *Matcher) Match(ctx context.Context, tenantID, text string) (*flow.Flow, error) {
	candidates, err := m.flows.FindFlowsByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var (
		best        *flow.Flow
		bestKeyword string
	)
	for _, f := range candidates {
		keyword, ok := f.MatchesTrigger(text)
		if !ok {
			continue
		}
		switch {
		case best == nil,
			len(keyword) > len(bestKeyword),
			len(keyword) == len(bestKeyword) && f.ID < best.ID:
			best = f
			bestKeyword = keyword
		}
	}

	if best != nil {
		m.logger.Debug("flow matched",
			zap.String("tenantID", tenantID),
			zap.String("flowID", best.ID),
			zap.String("keyword", bestKeyword),
		)
	}
	return best, nil
}
