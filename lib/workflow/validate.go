// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"regexp"
)

// stepIDPattern matches valid step ids. Step ids become keys in the
// steps.<id>.outputs context, so they must be identifiers.
var stepIDPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Validate checks a decoded workflow for structural issues. Returns a
// list of human-readable issue descriptions, each prefixed with the
// field path it concerns. An empty list means the workflow is valid.
//
// Structural checks include:
//   - At least one job is required
//   - Each job is either a regular job (runs-on and at least one step)
//     or a reusable-workflow call (uses), never both and never neither
//   - Container jobs are rejected (not supported locally)
//   - Each step sets exactly one of run or uses
//   - Step ids are identifiers and unique within their job
//   - timeout-minutes is not negative
//
// Dependency checks (needs: targets and cycles) are performed by
// ComputeJobOrder, which Parse calls after Validate succeeds.
func Validate(workflow *Workflow) []string {
	var issues []string

	if workflow.Jobs.Len() == 0 {
		return append(issues, "jobs: workflow has no jobs (at least one job is required)")
	}

	for _, id := range workflow.Jobs.Keys() {
		job, _ := workflow.Jobs.Get(id)
		issues = append(issues, validateJob(job, "jobs."+id)...)
	}

	return issues
}

func validateJob(job *Job, prefix string) []string {
	var issues []string

	regular := len(job.RunsOn) > 0 || len(job.Steps) > 0
	reusable := job.IsReusableCall()

	switch {
	case regular && reusable:
		issues = append(issues, fmt.Sprintf("%s: uses and runs-on/steps are mutually exclusive (a job is either a regular job or a reusable-workflow call)", prefix))
	case reusable:
		if len(job.Steps) > 0 {
			issues = append(issues, fmt.Sprintf("%s: a reusable-workflow call cannot declare steps", prefix))
		}
	case len(job.RunsOn) == 0 && len(job.Steps) == 0:
		issues = append(issues, fmt.Sprintf("%s: must set either runs-on with steps, or uses", prefix))
	case len(job.RunsOn) == 0:
		issues = append(issues, fmt.Sprintf("%s: runs-on is required", prefix))
	case len(job.Steps) == 0:
		issues = append(issues, fmt.Sprintf("%s: steps must not be empty", prefix))
	}

	if job.Container != nil {
		issues = append(issues, fmt.Sprintf("%s: container jobs are not supported", prefix))
	}
	if job.TimeoutMinutes < 0 {
		issues = append(issues, fmt.Sprintf("%s: timeout-minutes must not be negative", prefix))
	}

	stepIDs := make(map[string]int, len(job.Steps))
	for index, step := range job.Steps {
		stepPrefix := fmt.Sprintf("%s.steps[%d]", prefix, index)
		if step == nil {
			issues = append(issues, fmt.Sprintf("%s: step is empty", stepPrefix))
			continue
		}

		hasRun := step.Run != ""
		hasUses := step.Uses != ""
		switch {
		case hasRun && hasUses:
			issues = append(issues, fmt.Sprintf("%s: run and uses are mutually exclusive (set exactly one)", stepPrefix))
		case !hasRun && !hasUses:
			issues = append(issues, fmt.Sprintf("%s: must set either run or uses", stepPrefix))
		}

		if hasUses && step.Shell != "" {
			issues = append(issues, fmt.Sprintf("%s: shell is only valid on run steps", stepPrefix))
		}
		if step.TimeoutMinutes < 0 {
			issues = append(issues, fmt.Sprintf("%s: timeout-minutes must not be negative", stepPrefix))
		}

		if step.ID != "" {
			if !stepIDPattern.MatchString(step.ID) {
				issues = append(issues, fmt.Sprintf("%s: id %q must start with a letter or underscore and contain only letters, digits, '_' and '-'", stepPrefix, step.ID))
			}
			if first, exists := stepIDs[step.ID]; exists {
				issues = append(issues, fmt.Sprintf("%s: duplicate step id %q (first used at steps[%d])", stepPrefix, step.ID, first))
			} else {
				stepIDs[step.ID] = index
			}
		}
	}

	return issues
}
