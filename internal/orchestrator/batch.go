package orchestrator

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/profile-enricher/internal/model"
)

// ScrapeMany runs requests concurrently with at most maxConcurrent in
// flight (the configured default when <= 0). Responses are returned in
// request order; failures are carried on each response.
func (o *Orchestrator) ScrapeMany(ctx context.Context, reqs []model.ScrapeRequest, maxConcurrent int) []*model.ScrapeResponse {
	if maxConcurrent <= 0 {
		maxConcurrent = o.cfg.MaxConcurrent
	}
	out := make([]*model.ScrapeResponse, len(reqs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := o.Scrape(gCtx, req, nil)
			if err != nil {
				zap.L().Debug("orchestrator: batch request not attempted",
					zap.String("url", req.URL),
					zap.Error(err),
				)
			}
			out[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	var ok int
	for _, resp := range out {
		if resp.Success {
			ok++
		}
	}
	zap.L().Info("orchestrator: batch complete",
		zap.Int("requests", len(reqs)),
		zap.Int("succeeded", ok),
	)
	return out
}
