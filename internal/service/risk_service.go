package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lexworks/be-referrals/internal/analytics"
	"github.com/lexworks/be-referrals/internal/repository"
)

// RiskService runs the concentration analyzer on demand over a snapshot of the
// full referral population. It never mutates a referral; two runs separated in
// time may legitimately disagree.
type RiskService struct {
	referrals ReferralStore
	log       zerolog.Logger
}

// NewRiskService creates a new RiskService.
func NewRiskService(referrals ReferralStore, log zerolog.Logger) *RiskService {
	return &RiskService{referrals: referrals, log: log}
}

// ConcentrationAlerts snapshots all referrals and computes concentration alerts.
func (s *RiskService) ConcentrationAlerts(ctx context.Context) ([]analytics.Alert, error) {
	snapshot, err := s.referrals.List(ctx, repository.ReferralFilter{})
	if err != nil {
		return nil, err
	}

	alerts := analytics.ComputeAlerts(snapshot)

	s.log.Debug().
		Int("referrals", len(snapshot)).
		Int("alerts", len(alerts)).
		Msg("Concentration analysis completed")

	return alerts, nil
}
