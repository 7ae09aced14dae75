package content

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/notiflow/pkg/models"
)

// TierRestrictionsValidator reports control values that exceed what the
// organization's plan allows.
type TierRestrictionsValidator interface {
	Validate(ctx context.Context, stepType models.StepType, tier models.Tier, controls map[string]any) models.ContentIssues
}

const day = 24 * time.Hour

var unitDurations = map[string]time.Duration{
	"seconds": time.Second,
	"minutes": time.Minute,
	"hours":   time.Hour,
	"days":    day,
	"weeks":   7 * day,
	"months":  30 * day,
}

// DefaultMaxDeferral is the longest delay or digest window per tier.
var DefaultMaxDeferral = map[models.Tier]time.Duration{
	models.TierFree:       30 * day,
	models.TierPro:        90 * day,
	models.TierTeam:       365 * day,
	models.TierBusiness:   365 * day,
	models.TierEnterprise: 365 * day,
}

// PlanTierValidator limits the deferral window of delay and digest steps.
type PlanTierValidator struct {
	MaxDeferral map[models.Tier]time.Duration
}

// NewPlanTierValidator returns a validator using DefaultMaxDeferral.
func NewPlanTierValidator() *PlanTierValidator {
	return &PlanTierValidator{MaxDeferral: DefaultMaxDeferral}
}

func (v *PlanTierValidator) Validate(_ context.Context, stepType models.StepType, tier models.Tier, controls map[string]any) models.ContentIssues {
	issues := models.ContentIssues{}

	if stepType != models.StepTypeDelay && stepType != models.StepTypeDigest {
		return issues
	}

	limit, ok := v.MaxDeferral[tier]
	if !ok {
		limit = v.MaxDeferral[models.TierFree]
	}

	amount, ok := toFloat(controls["amount"])
	if !ok {
		return issues
	}

	unitName, _ := controls["unit"].(string)

	unit, ok := unitDurations[unitName]
	if !ok {
		return issues
	}

	if amount*float64(unit) <= float64(limit) {
		return issues
	}

	message := fmt.Sprintf("The maximum delay allowed for the %s tier is %d days", tier, int(limit/day))
	for _, key := range []string{"amount", "unit"} {
		issues.Add(key, models.ContentIssue{
			IssueType: models.IssueTypeTierLimitExceeded,
			Message:   message,
		})
	}

	return issues
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	default:
		return 0, false
	}
}
