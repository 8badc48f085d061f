package analytics

import (
	"math"
	"sort"

	"github.com/lexworks/be-referrals/internal/repository"
)

// Alert thresholds. Comparisons are strict: a share exactly at the threshold
// does not alert.
const (
	incomingAlertPct = 30.0
	incomingHighPct  = 50.0
	outgoingAlertPct = 50.0
)

// AlertType distinguishes the two concentration passes.
type AlertType string

const (
	AlertIncoming AlertType = "incoming"
	AlertOutgoing AlertType = "outgoing"
)

// Severity grades an alert.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert flags one attorney whose referral flow is concentrated on a single
// counterpart. Exactly one of Source / Destination is set, matching Type.
type Alert struct {
	Type        AlertType `json:"type"`
	AttorneyID  string    `json:"attorney_id"`
	Source      string    `json:"source,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Percentage  float64   `json:"percentage"` // one decimal place
	Count       int       `json:"count"`
	Severity    Severity  `json:"severity"`
}

// ComputeAlerts runs both concentration passes over a snapshot of the full
// referral population. It is side-effect-free and deterministic for a given
// input; callers are responsible for taking a consistent snapshot. Empty input
// yields an empty result.
//
// Incoming: per receiving attorney, the share of referrals arriving from each
// single source; alerts above 30%, high above 50%, medium otherwise.
// Outgoing: per referring attorney, the share flowing to each single
// destination; alerts only above 50% and always high — outgoing concentration
// is treated as strictly binary risk.
func ComputeAlerts(referrals []*repository.Referral) []Alert {
	alerts := computeIncoming(referrals)
	alerts = append(alerts, computeOutgoing(referrals)...)
	return alerts
}

func computeIncoming(referrals []*repository.Referral) []Alert {
	// destination attorney -> source key -> count
	byDest := make(map[string]map[string]int)
	totals := make(map[string]int)

	for _, ref := range referrals {
		if ref.DestActorID == nil {
			continue // external destinations are not supervised attorneys
		}
		source := sourceKey(ref)
		if source == "" {
			continue
		}
		dest := *ref.DestActorID
		if byDest[dest] == nil {
			byDest[dest] = make(map[string]int)
		}
		byDest[dest][source]++
		totals[dest]++
	}

	var alerts []Alert
	for _, dest := range sortedKeys(byDest) {
		total := totals[dest]
		for _, source := range sortedCountKeys(byDest[dest]) {
			count := byDest[dest][source]
			pct := float64(count) / float64(total) * 100
			if pct <= incomingAlertPct {
				continue
			}
			severity := SeverityMedium
			if pct > incomingHighPct {
				severity = SeverityHigh
			}
			alerts = append(alerts, Alert{
				Type:       AlertIncoming,
				AttorneyID: dest,
				Source:     source,
				Percentage: round1(pct),
				Count:      count,
				Severity:   severity,
			})
		}
	}
	return alerts
}

func computeOutgoing(referrals []*repository.Referral) []Alert {
	// referring attorney -> destination key -> count
	byReferrer := make(map[string]map[string]int)
	totals := make(map[string]int)

	for _, ref := range referrals {
		if ref.ReferringActorID == nil {
			continue
		}
		dest := destinationKey(ref)
		if dest == "" {
			continue
		}
		referrer := *ref.ReferringActorID
		if byReferrer[referrer] == nil {
			byReferrer[referrer] = make(map[string]int)
		}
		byReferrer[referrer][dest]++
		totals[referrer]++
	}

	var alerts []Alert
	for _, referrer := range sortedKeys(byReferrer) {
		total := totals[referrer]
		for _, dest := range sortedCountKeys(byReferrer[referrer]) {
			count := byReferrer[referrer][dest]
			pct := float64(count) / float64(total) * 100
			if pct <= outgoingAlertPct {
				continue
			}
			alerts = append(alerts, Alert{
				Type:        AlertOutgoing,
				AttorneyID:  referrer,
				Destination: dest,
				Percentage:  round1(pct),
				Count:       count,
				Severity:    SeverityHigh,
			})
		}
	}
	return alerts
}

// sourceKey identifies where a referral came from: the external source name
// when present, otherwise the referring actor.
func sourceKey(ref *repository.Referral) string {
	if ref.DestExternalName != nil {
		return *ref.DestExternalName
	}
	if ref.ReferringActorID != nil {
		return *ref.ReferringActorID
	}
	return ""
}

// destinationKey identifies where a referral went: the internal destination
// actor or the external party name.
func destinationKey(ref *repository.Referral) string {
	if ref.DestActorID != nil {
		return *ref.DestActorID
	}
	if ref.DestExternalName != nil {
		return *ref.DestExternalName
	}
	return ""
}

// round1 rounds to one decimal place for the alert payload; thresholds are
// compared at full precision before rounding.
func round1(pct float64) float64 {
	return math.Round(pct*10) / 10
}

func sortedKeys(m map[string]map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
