package models

import (
	"fmt"

	"dario.cat/mergo"
)

// IssueType enumerates the content issues a control value can carry.
type IssueType string

const (
	IssueTypeMissingValue             IssueType = "MISSING_VALUE"
	IssueTypeIllegalVariable          IssueType = "ILLEGAL_VARIABLE_IN_CONTROL_VALUE"
	IssueTypeMissingVariableInPayload IssueType = "MISSING_VARIABLE_IN_PAYLOAD"
	IssueTypeInvalidURL               IssueType = "INVALID_URL"
	IssueTypeTierLimitExceeded        IssueType = "TIER_LIMIT_EXCEEDED"
	IssueTypeVariableTypeMismatch     IssueType = "VARIABLE_TYPE_MISMATCH"
)

// ContentIssue is a typed diagnostic attached to a control value path.
type ContentIssue struct {
	IssueType    IssueType `json:"issueType"`
	Message      string    `json:"message"`
	VariableName string    `json:"variableName,omitempty"`
}

// ContentIssues maps a control value path to its issues. An empty map means no issues.
type ContentIssues map[string][]ContentIssue

// Add appends an issue under key.
func (c ContentIssues) Add(key string, issue ContentIssue) {
	c[key] = append(c[key], issue)
}

// Without returns a copy of the issues minus every issue of the given types.
// Keys left with no issues are dropped.
func (c ContentIssues) Without(types ...IssueType) ContentIssues {
	out := ContentIssues{}

	for key, issues := range c {
		for _, issue := range issues {
			if containsIssueType(types, issue.IssueType) {
				continue
			}

			out[key] = append(out[key], issue)
		}
	}

	return out
}

func containsIssueType(types []IssueType, t IssueType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}

	return false
}

// MergeIssues folds sources into a single issue map in argument order.
// Issues under the same key are concatenated, earlier sources first.
func MergeIssues(sources ...ContentIssues) (ContentIssues, error) {
	merged := ContentIssues{}

	for _, source := range sources {
		if len(source) == 0 {
			continue
		}

		err := mergo.Merge(&merged, source, mergo.WithAppendSlice)
		if err != nil {
			return nil, fmt.Errorf("failed to merge issues: %w", err)
		}
	}

	return merged, nil
}

// StepIssueType enumerates issues on a step definition itself.
type StepIssueType string

const (
	StepIssueTypeStepIDExists         StepIssueType = "STEP_ID_EXISTS"
	StepIssueTypeMissingRequiredValue StepIssueType = "MISSING_REQUIRED_VALUE"
)

// StepIssue is a diagnostic on a step definition field.
type StepIssue struct {
	IssueType StepIssueType `json:"issueType"`
	Message   string        `json:"message"`
}

// StepIssues is persisted on every step.
type StepIssues struct {
	Body     map[string]StepIssue `json:"body,omitempty"`
	Controls ContentIssues        `json:"controls,omitempty"`
}

// IsEmpty reports whether the step carries neither body nor control issues.
func (s *StepIssues) IsEmpty() bool {
	return s == nil || (len(s.Body) == 0 && len(s.Controls) == 0)
}

// WorkflowIssueType enumerates workflow-level issues.
type WorkflowIssueType string

const (
	WorkflowIssueTypeMissingValue            WorkflowIssueType = "MISSING_VALUE"
	WorkflowIssueTypeMaxLengthAccessed       WorkflowIssueType = "MAX_LENGTH_ACCESSED"
	WorkflowIssueTypeWorkflowIDAlreadyExists WorkflowIssueType = "WORKFLOW_ID_ALREADY_EXISTS"
	WorkflowIssueTypeDuplicatedValue         WorkflowIssueType = "DUPLICATED_VALUE"
	WorkflowIssueTypeLimitReached            WorkflowIssueType = "LIMIT_REACHED"
)

// WorkflowIssue is a diagnostic on a workflow-level field.
type WorkflowIssue struct {
	IssueType WorkflowIssueType `json:"issueType"`
	Message   string            `json:"message"`
}
