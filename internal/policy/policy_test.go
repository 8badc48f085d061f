package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexworks/be-referrals/internal/repository"
)

func strptr(s string) *string { return &s }
func intptr(n int) *int       { return &n }

func TestRequiredCategoriesCrossAttorney(t *testing.T) {
	table := Default()

	cats := table.RequiredCategories(ReferralAttributes{
		ReferringActorID: strptr("att-1"),
		DestActorID:      strptr("att-2"),
		SourceCategory:   repository.SourceInternal,
		Priority:         repository.PriorityNormal,
	})

	require.Equal(t, []repository.ApprovalCategory{repository.CategoryCaseManager}, cats)
}

func TestRequiredCategoriesFeeTriggersFirmAdmin(t *testing.T) {
	table := Default()

	cats := table.RequiredCategories(ReferralAttributes{
		ReferringActorID: strptr("att-1"),
		DestActorID:      strptr("att-2"),
		SourceCategory:   repository.SourceInternal,
		FeeCents:         1, // any paid referral under the default table
		Priority:         repository.PriorityNormal,
	})

	require.Contains(t, cats, repository.CategoryFirmAdmin)
}

func TestRequiredCategoriesComplianceTriggers(t *testing.T) {
	table := Default()
	base := ReferralAttributes{
		ReferringActorID: strptr("att-1"),
		DestActorID:      strptr("att-2"),
		SourceCategory:   repository.SourceInternal,
		Priority:         repository.PriorityNormal,
	}

	t.Run("fee above threshold", func(t *testing.T) {
		attrs := base
		attrs.FeeCents = table.Thresholds.ComplianceFeeCents + 1
		require.Contains(t, table.RequiredCategories(attrs), repository.CategoryCompliance)
	})

	t.Run("fee at threshold does not trigger", func(t *testing.T) {
		attrs := base
		attrs.FeeCents = table.Thresholds.ComplianceFeeCents
		require.NotContains(t, table.RequiredCategories(attrs), repository.CategoryCompliance)
	})

	t.Run("urgent priority", func(t *testing.T) {
		attrs := base
		attrs.Priority = repository.PriorityUrgent
		require.Contains(t, table.RequiredCategories(attrs), repository.CategoryCompliance)
	})

	t.Run("risk score above threshold", func(t *testing.T) {
		attrs := base
		attrs.RiskScore = intptr(table.Thresholds.ComplianceRisk + 1)
		require.Contains(t, table.RequiredCategories(attrs), repository.CategoryCompliance)
	})

	t.Run("unset risk score never triggers", func(t *testing.T) {
		require.NotContains(t, table.RequiredCategories(base), repository.CategoryCompliance)
	})
}

func TestRequiredCategoriesFirmAdminSourceCategories(t *testing.T) {
	table := Default()

	cats := table.RequiredCategories(ReferralAttributes{
		DestActorID:    strptr("att-2"),
		SourceCategory: repository.SourceCourt,
		FeeCents:       0,
		Priority:       repository.PriorityNormal,
	})

	// Court-sourced work needs firm admin regardless of fee; no referring
	// attorney means no case_manager.
	require.Equal(t, []repository.ApprovalCategory{repository.CategoryFirmAdmin}, cats)
}

func TestRoleCanDecide(t *testing.T) {
	table := Default()

	require.True(t, table.RoleCanDecide("case_manager", repository.CategoryCaseManager))
	require.True(t, table.RoleCanDecide("managing_partner", repository.CategoryCompliance))
	require.False(t, table.RoleCanDecide("case_manager", repository.CategoryCompliance))
	require.False(t, table.RoleCanDecide("paralegal", repository.CategoryCaseManager))
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
thresholds:
  firm_admin_fee_cents: 500000
  compliance_fee_cents: 10000000
  compliance_risk_score: 5
permitted_roles:
  case_manager: [case_manager]
  firm_admin: [firm_admin, office_manager]
  compliance: [compliance_officer]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := LoadFile(path)
	require.NoError(t, err)

	require.EqualValues(t, 500000, table.Thresholds.FirmAdminFeeCents)
	require.True(t, table.RoleCanDecide("office_manager", repository.CategoryFirmAdmin))
	require.False(t, table.RoleCanDecide("managing_partner", repository.CategoryCaseManager))

	// Sections the file does not name keep their defaults.
	require.Equal(t, Default().FirmAdminSourceCategories, table.FirmAdminSourceCategories)
}

func TestLoadFileRejectsUndecidableCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
permitted_roles:
  case_manager: []
  firm_admin: [firm_admin]
  compliance: [compliance_officer]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
}
