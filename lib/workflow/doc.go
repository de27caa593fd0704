// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow parses CI workflow documents into an executable job
// graph.
//
// The typical flow:
//
//  1. [ReadFile] or [Parse]: YAML bytes → [Workflow], with structural
//     validation (run XOR uses on steps, regular job XOR reusable call on
//     jobs, needs referencing declared jobs, no dependency cycles). Any
//     violation is a terminal [ParseError]; there is no partially valid
//     workflow.
//  2. [ComputeJobOrder]: a dependency-respecting sequential schedule.
//     [NewGraph] offers the same dependencies as a DAG for callers that
//     want stages ([Graph.Levels]) or failure propagation
//     ([Graph.Downstream]).
//  3. [GenerateMatrixCombinations]: the Cartesian fan-out of a job's
//     strategy.matrix, one [Combination] per job run.
//  4. [ResolveReusableWorkflowPath] and [ResolveReusableWorkflowInputs]
//     for jobs that call another workflow file with uses:.
//
// Jobs are kept in an ordered [JobMap] so that every derived ordering
// (job order, plan output, error messages) is stable across runs.
package workflow
