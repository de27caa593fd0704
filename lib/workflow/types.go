// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

// Workflow is a parsed workflow document.
type Workflow struct {
	// Name is the declared workflow name, or the source file's base
	// name when the document does not declare one.
	Name string `yaml:"name"`

	// Path is the file the workflow was read from. Empty for documents
	// parsed from memory without a source path.
	Path string `yaml:"-"`

	// On is the trigger declaration.
	On Trigger `yaml:"on"`

	// Env is the workflow-level environment, the lowest-precedence
	// declared env layer.
	Env StringMap `yaml:"env,omitempty"`

	// Defaults holds defaults.run (shell and working-directory).
	Defaults Defaults `yaml:"defaults,omitempty"`

	// Jobs holds the jobs in declaration order.
	Jobs *JobMap `yaml:"jobs"`
}

// Defaults is the defaults: block of a workflow or job.
type Defaults struct {
	Run RunDefaults `yaml:"run,omitempty"`
}

// RunDefaults configures run steps that do not set their own shell or
// working directory.
type RunDefaults struct {
	Shell            string `yaml:"shell,omitempty"`
	WorkingDirectory string `yaml:"working-directory,omitempty"`
}

// Job is one entry under jobs:. A job is either a regular job (RunsOn
// and Steps) or a reusable-workflow call (Uses), never both.
type Job struct {
	// ID is the job's key under jobs:. Set by the parser.
	ID string `yaml:"-"`

	Name   string     `yaml:"name,omitempty"`
	RunsOn StringList `yaml:"runs-on,omitempty"`
	Needs  StringList `yaml:"needs,omitempty"`
	If     string     `yaml:"if,omitempty"`

	Strategy *Strategy `yaml:"strategy,omitempty"`

	Env      StringMap         `yaml:"env,omitempty"`
	Outputs  map[string]string `yaml:"outputs,omitempty"`
	Defaults Defaults          `yaml:"defaults,omitempty"`
	Steps    []*Step           `yaml:"steps,omitempty"`

	// TimeoutMinutes bounds the whole job. Zero means no limit.
	TimeoutMinutes float64 `yaml:"timeout-minutes,omitempty"`

	ContinueOnError bool `yaml:"continue-on-error,omitempty"`

	// Container is retained only so the validator can reject
	// container jobs with a precise message.
	Container any `yaml:"container,omitempty"`

	// Uses, With, and Secrets describe a reusable-workflow call.
	Uses    string         `yaml:"uses,omitempty"`
	With    map[string]any `yaml:"with,omitempty"`
	Secrets JobSecrets     `yaml:"secrets,omitempty"`
}

// IsReusableCall reports whether the job calls another workflow.
func (j *Job) IsReusableCall() bool {
	return j.Uses != ""
}

// DisplayName returns the declared name, falling back to the job id.
func (j *Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

// JobSecrets is the secrets: value of a reusable-workflow call: either
// the literal "inherit" or an explicit name → expression mapping.
type JobSecrets struct {
	Inherit bool
	Values  map[string]string
}

// Step is one entry in a job's steps: list. Exactly one of Run or Uses
// is set. Steps are immutable after parsing.
type Step struct {
	ID   string `yaml:"id,omitempty"`
	Name string `yaml:"name,omitempty"`
	If   string `yaml:"if,omitempty"`

	Run  string    `yaml:"run,omitempty"`
	Uses string    `yaml:"uses,omitempty"`
	With StringMap `yaml:"with,omitempty"`
	Env  StringMap `yaml:"env,omitempty"`

	Shell            string `yaml:"shell,omitempty"`
	WorkingDirectory string `yaml:"working-directory,omitempty"`

	ContinueOnError bool    `yaml:"continue-on-error,omitempty"`
	TimeoutMinutes  float64 `yaml:"timeout-minutes,omitempty"`
}

// DisplayName returns a human-readable label for the step: its name,
// else its uses reference, else the first line of its script.
func (s *Step) DisplayName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Uses != "":
		return s.Uses
	default:
		return "Run " + firstLine(s.Run)
	}
}

// Strategy is a job's strategy: block.
type Strategy struct {
	Matrix      *Matrix `yaml:"matrix,omitempty"`
	FailFast    *bool   `yaml:"fail-fast,omitempty"`
	MaxParallel int     `yaml:"max-parallel,omitempty"`
}

// Matrix is a strategy.matrix declaration. Dimensions keep their
// declaration order because combination order follows it.
type Matrix struct {
	Dimensions []Dimension
	Include    []map[string]any
	Exclude    []map[string]any

	// Expression holds the raw text when the whole matrix is a
	// ${{ }} expression. Such matrices cannot be expanded locally.
	Expression string
}

// Dimension is one named axis of a matrix.
type Dimension struct {
	Name   string
	Values []any
}

// Combination is one element of a matrix's Cartesian product:
// dimension name → scalar value. Jobs without a matrix run with a
// single empty combination.
type Combination map[string]any

// Trigger is the on: declaration.
type Trigger struct {
	// Events lists the trigger event names in declaration order.
	Events []string

	// WorkflowCall is set when the workflow declares on.workflow_call,
	// making it callable as a reusable workflow.
	WorkflowCall *WorkflowCall

	// WorkflowDispatch is set when the workflow declares
	// on.workflow_dispatch.
	WorkflowDispatch *WorkflowDispatch
}

// WorkflowCall is the contract of a reusable workflow.
type WorkflowCall struct {
	Inputs  map[string]InputSpec  `yaml:"inputs,omitempty"`
	Outputs map[string]OutputSpec `yaml:"outputs,omitempty"`
	Secrets map[string]SecretSpec `yaml:"secrets,omitempty"`
}

// WorkflowDispatch declares manually supplied inputs.
type WorkflowDispatch struct {
	Inputs map[string]InputSpec `yaml:"inputs,omitempty"`
}

// InputSpec declares one input of a reusable or dispatched workflow.
type InputSpec struct {
	Description string `yaml:"description,omitempty"`
	Type        string `yaml:"type,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
	Default     any    `yaml:"default,omitempty"`
}

// OutputSpec declares one output of a reusable workflow. Value is an
// expression, typically ${{ jobs.<id>.outputs.<name> }}.
type OutputSpec struct {
	Description string `yaml:"description,omitempty"`
	Value       string `yaml:"value"`
}

// SecretSpec declares one secret a reusable workflow expects.
type SecretSpec struct {
	Description string `yaml:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
}
