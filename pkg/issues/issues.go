// Package issues rolls validation results up into the step and workflow issue
// records persisted with a workflow, and derives the workflow status.
package issues

import (
	"fmt"
	"strings"

	"github.com/dukex/notiflow/pkg/models"
)

const (
	MaxDescriptionLength = 256
	MaxTags              = 16
)

// BuildWorkflowIssues validates workflow-level fields. workflowIDTaken reports
// whether another workflow of the environment uses the same trigger identifier.
func BuildWorkflowIssues(wf *models.Workflow, workflowIDTaken bool) map[string][]models.WorkflowIssue {
	issues := map[string][]models.WorkflowIssue{}

	add := func(field string, issueType models.WorkflowIssueType, message string) {
		issues[field] = append(issues[field], models.WorkflowIssue{IssueType: issueType, Message: message})
	}

	if strings.TrimSpace(wf.Name) == "" {
		add("name", models.WorkflowIssueTypeMissingValue, "Name is missing")
	}

	if len(wf.Description) > MaxDescriptionLength {
		add("description", models.WorkflowIssueTypeMaxLengthAccessed,
			fmt.Sprintf("Description must not exceed %d characters", MaxDescriptionLength))
	}

	if strings.TrimSpace(wf.WorkflowID) == "" {
		add("workflowId", models.WorkflowIssueTypeMissingValue, "Workflow id is missing")
	} else if workflowIDTaken {
		add("workflowId", models.WorkflowIssueTypeWorkflowIDAlreadyExists,
			fmt.Sprintf("Workflow with id %s already exists", wf.WorkflowID))
	}

	if len(wf.Tags) > MaxTags {
		add("tags", models.WorkflowIssueTypeLimitReached, fmt.Sprintf("Tags must not exceed %d items", MaxTags))
	}

	seen := map[string]bool{}

	for _, tag := range wf.Tags {
		switch {
		case strings.TrimSpace(tag) == "":
			add("tags", models.WorkflowIssueTypeMissingValue, "Tags must not be empty")
		case seen[tag]:
			add("tags", models.WorkflowIssueTypeDuplicatedValue, fmt.Sprintf("Duplicated tag: %s", tag))
		}

		seen[tag] = true
	}

	return issues
}

// BuildStepIssues combines the body issues of a step definition with the
// issues found in its control values. MISSING_VARIABLE_IN_PAYLOAD is dropped:
// no trigger payload exists at authoring time.
func BuildStepIssues(step *models.Step, stepIDTaken bool, controlIssues models.ContentIssues) *models.StepIssues {
	result := &models.StepIssues{
		Body:     map[string]models.StepIssue{},
		Controls: controlIssues.Without(models.IssueTypeMissingVariableInPayload),
	}

	if strings.TrimSpace(step.Name) == "" {
		result.Body["name"] = models.StepIssue{
			IssueType: models.StepIssueTypeMissingRequiredValue,
			Message:   "Step name is missing",
		}
	}

	if strings.TrimSpace(step.StepID) == "" {
		result.Body["stepId"] = models.StepIssue{
			IssueType: models.StepIssueTypeMissingRequiredValue,
			Message:   "Step id is missing",
		}
	} else if stepIDTaken {
		result.Body["stepId"] = models.StepIssue{
			IssueType: models.StepIssueTypeStepIDExists,
			Message:   fmt.Sprintf("Step with id %s already exists", step.StepID),
		}
	}

	return result
}

// DuplicateStepIDs returns the step ids used by more than one step.
func DuplicateStepIDs(steps []*models.Step) map[string]bool {
	counts := map[string]int{}
	for _, step := range steps {
		counts[step.StepID]++
	}

	duplicates := map[string]bool{}

	for stepID, count := range counts {
		if count > 1 {
			duplicates[stepID] = true
		}
	}

	return duplicates
}

// HasIssues reports whether the workflow or any of its steps carries issues.
func HasIssues(wf *models.Workflow) bool {
	for _, fieldIssues := range wf.Issues {
		if len(fieldIssues) > 0 {
			return true
		}
	}

	for _, step := range wf.Steps {
		if !step.Issues.IsEmpty() {
			return true
		}
	}

	return false
}

// ComputeStatus derives the workflow status. An inactive workflow stays
// inactive whatever its issues.
func ComputeStatus(wf *models.Workflow) models.WorkflowStatus {
	switch {
	case !wf.Active:
		return models.WorkflowStatusInactive
	case HasIssues(wf):
		return models.WorkflowStatusError
	default:
		return models.WorkflowStatusActive
	}
}
