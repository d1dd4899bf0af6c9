package service

import (
	"context"
	"time"

	"tokosinar/backend/internal/domain"
)

// ProfitLoss builds the profit and loss statement for [from, to). When both
// bounds are zero the current calendar month is used.
func (s *Service) ProfitLoss(ctx context.Context, from, to time.Time) (domain.ProfitLossReport, error) {
	if from.IsZero() && to.IsZero() {
		now := time.Now().UTC()
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, 0)
	}
	report, err := s.repo.ProfitLoss(ctx, from, to)
	if err != nil {
		return domain.ProfitLossReport{}, err
	}
	return *report, nil
}

func (s *Service) SalesAnalysis(ctx context.Context, from, to time.Time) ([]domain.SalesAnalysisRow, error) {
	if from.IsZero() && to.IsZero() {
		now := time.Now().UTC()
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, 0)
	}
	return s.repo.SalesAnalysis(ctx, from, to)
}
