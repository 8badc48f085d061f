package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lexworks/be-referrals/internal/repository"
)

// Table is the externally configurable approval policy: which roles may act on
// each approval category, and which referral attributes require which
// categories. The engine consults it; it never hard-codes thresholds.
type Table struct {
	// PermittedRoles maps a category to the actor roles allowed to decide it.
	PermittedRoles map[repository.ApprovalCategory][]string `yaml:"permitted_roles"`

	// Thresholds drive the required-category derivation.
	Thresholds Thresholds `yaml:"thresholds"`

	// FirmAdminSourceCategories lists source categories that always require a
	// firm_admin sign-off regardless of fee.
	FirmAdminSourceCategories []repository.SourceCategory `yaml:"firm_admin_source_categories"`
}

// Thresholds are the fee and risk cut-offs used by the derivation rules.
// Comparisons are strict (a value equal to the threshold does not trigger).
type Thresholds struct {
	FirmAdminFeeCents  int64 `yaml:"firm_admin_fee_cents"`
	ComplianceFeeCents int64 `yaml:"compliance_fee_cents"`
	ComplianceRisk     int   `yaml:"compliance_risk_score"`
}

// Default returns the firm's baseline policy, used when no policy file is
// configured.
func Default() *Table {
	return &Table{
		PermittedRoles: map[repository.ApprovalCategory][]string{
			repository.CategoryCaseManager: {"case_manager", "managing_partner"},
			repository.CategoryFirmAdmin:   {"firm_admin", "managing_partner"},
			repository.CategoryCompliance:  {"compliance_officer", "managing_partner"},
		},
		Thresholds: Thresholds{
			FirmAdminFeeCents:  0,       // any paid referral needs firm admin
			ComplianceFeeCents: 2500000, // $25,000
			ComplianceRisk:     7,
		},
		FirmAdminSourceCategories: []repository.SourceCategory{
			repository.SourceExternal,
			repository.SourceCourt,
		},
	}
}

// LoadFile reads a policy table from YAML. Missing sections fall back to the
// defaults so a partial file only overrides what it names.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	t := Default()
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate rejects a table that leaves any category undecidable.
func (t *Table) Validate() error {
	for _, cat := range []repository.ApprovalCategory{
		repository.CategoryCaseManager,
		repository.CategoryFirmAdmin,
		repository.CategoryCompliance,
	} {
		if len(t.PermittedRoles[cat]) == 0 {
			return fmt.Errorf("policy: no permitted roles for category %q", cat)
		}
	}
	return nil
}

// RoleCanDecide reports whether a role is in the permitted-role set for a category.
func (t *Table) RoleCanDecide(role string, cat repository.ApprovalCategory) bool {
	for _, allowed := range t.PermittedRoles[cat] {
		if allowed == role {
			return true
		}
	}
	return false
}

// ReferralAttributes are the creation-time inputs to the derivation rules.
type ReferralAttributes struct {
	ReferringActorID *string
	DestActorID      *string
	SourceCategory   repository.SourceCategory
	FeeCents         int64
	Priority         repository.Priority
	RiskScore        *int
}

// RequiredCategories derives the approval categories a referral needs. The
// result is fixed at creation; the workflow never re-derives it.
func (t *Table) RequiredCategories(attrs ReferralAttributes) []repository.ApprovalCategory {
	var cats []repository.ApprovalCategory

	// Cross-attorney internal referrals always need a case manager sign-off.
	if attrs.ReferringActorID != nil && attrs.DestActorID != nil {
		cats = append(cats, repository.CategoryCaseManager)
	}

	if t.requiresFirmAdmin(attrs) {
		cats = append(cats, repository.CategoryFirmAdmin)
	}

	if t.requiresCompliance(attrs) {
		cats = append(cats, repository.CategoryCompliance)
	}

	return cats
}

func (t *Table) requiresFirmAdmin(attrs ReferralAttributes) bool {
	if attrs.FeeCents > t.Thresholds.FirmAdminFeeCents {
		return true
	}
	for _, sc := range t.FirmAdminSourceCategories {
		if sc == attrs.SourceCategory {
			return true
		}
	}
	return false
}

func (t *Table) requiresCompliance(attrs ReferralAttributes) bool {
	if attrs.FeeCents > t.Thresholds.ComplianceFeeCents {
		return true
	}
	if attrs.Priority == repository.PriorityUrgent {
		return true
	}
	// An unset risk score never triggers, mirroring absent rule bounds.
	if attrs.RiskScore != nil && *attrs.RiskScore > t.Thresholds.ComplianceRisk {
		return true
	}
	return false
}
