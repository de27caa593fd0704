// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package expression

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// placeholderPattern matches one ${{ ... }} placeholder. The body is
// matched lazily so adjacent placeholders stay separate.
var placeholderPattern = regexp.MustCompile(`(?s)\$\{\{(.*?)\}\}`)

// segmentPattern matches one dotted path segment of a property
// reference. Anything else (operators, spaces, brackets) makes the
// whole reference unknown.
var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// hashFilesPattern matches a hashFiles(...) call.
var hashFilesPattern = regexp.MustCompile(`^hashFiles\((.*)\)$`)

// Kind classifies a placeholder body.
type Kind int

const (
	// KindUnknown is any expression outside the supported subset. It
	// is never evaluated; Expand leaves it verbatim.
	KindUnknown Kind = iota
	KindLiteral
	KindEnv
	KindSecrets
	KindMatrix
	KindSteps
	KindInputs
	KindNeeds
	KindJobs
	KindGitHub
	KindRunner
	KindHashFiles
)

var kindNames = [...]string{
	KindUnknown:   "unknown",
	KindLiteral:   "literal",
	KindEnv:       "env",
	KindSecrets:   "secrets",
	KindMatrix:    "matrix",
	KindSteps:     "steps",
	KindInputs:    "inputs",
	KindNeeds:     "needs",
	KindJobs:      "jobs",
	KindGitHub:    "github",
	KindRunner:    "runner",
	KindHashFiles: "hashFiles",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Reference is a classified placeholder body.
type Reference struct {
	Kind Kind

	// Path holds the dotted segments after the context name. For
	// steps, needs, and jobs it is [id, "outputs", name]. For github
	// it may be ["event", ...] for event payload lookups.
	Path []string

	// Arguments holds the string arguments of hashFiles, or the single
	// value of a literal.
	Arguments []string
}

// Context carries the values references resolve against. Every field
// is optional; a nil map simply resolves nothing.
type Context struct {
	Secrets map[string]string
	Matrix  map[string]any

	// Steps maps step id → output name → value for the steps of the
	// current job (or composite action) that have completed.
	Steps map[string]map[string]string

	// Inputs holds reusable-workflow or dispatch inputs.
	Inputs map[string]any

	// Needs maps job id → output name → value for the jobs the current
	// job depends on.
	Needs map[string]map[string]string

	// Jobs maps job id → output name → value for completed jobs in the
	// current workflow. Used when extracting reusable-workflow outputs.
	Jobs map[string]map[string]string

	// GitHub holds github.<prop> values (sha, ref, repository,
	// workspace, event_name, ...).
	GitHub map[string]string

	// Event is the decoded event payload exposed as github.event.*.
	Event map[string]any

	// Runner holds runner.<prop> values (os, arch, temp, tool_cache).
	Runner map[string]string

	// Workspace is the directory hashFiles patterns are relative to.
	Workspace string
}

// Parse classifies a placeholder body (the text between ${{ and }}).
func Parse(body string) Reference {
	body = strings.TrimSpace(body)

	if literal, ok := parseStringLiteral(body); ok {
		return Reference{Kind: KindLiteral, Arguments: []string{literal}}
	}
	if match := hashFilesPattern.FindStringSubmatch(body); match != nil {
		arguments, ok := parseArguments(match[1])
		if !ok || len(arguments) == 0 {
			return Reference{Kind: KindUnknown}
		}
		return Reference{Kind: KindHashFiles, Arguments: arguments}
	}

	segments := strings.Split(body, ".")
	for _, segment := range segments {
		if !segmentPattern.MatchString(segment) {
			return Reference{Kind: KindUnknown}
		}
	}
	path := segments[1:]

	switch segments[0] {
	case "env":
		if len(path) == 1 {
			return Reference{Kind: KindEnv, Path: path}
		}
	case "secrets":
		if len(path) == 1 {
			return Reference{Kind: KindSecrets, Path: path}
		}
	case "matrix":
		if len(path) == 1 {
			return Reference{Kind: KindMatrix, Path: path}
		}
	case "inputs":
		if len(path) == 1 {
			return Reference{Kind: KindInputs, Path: path}
		}
	case "runner":
		if len(path) == 1 {
			return Reference{Kind: KindRunner, Path: path}
		}
	case "steps":
		if len(path) == 3 && path[1] == "outputs" {
			return Reference{Kind: KindSteps, Path: path}
		}
	case "needs":
		if len(path) == 3 && path[1] == "outputs" {
			return Reference{Kind: KindNeeds, Path: path}
		}
	case "jobs":
		if len(path) == 3 && path[1] == "outputs" {
			return Reference{Kind: KindJobs, Path: path}
		}
	case "github":
		if len(path) == 1 || (len(path) > 1 && path[0] == "event") {
			return Reference{Kind: KindGitHub, Path: path}
		}
	}
	return Reference{Kind: KindUnknown}
}

// Expand replaces every ${{ ... }} placeholder in text. Unknown
// expressions are left verbatim; recognized references with no value
// become the empty string. env supplies the env.* context.
func Expand(text string, env map[string]string, ctx *Context) string {
	if !strings.Contains(text, "${{") {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(placeholder string) string {
		body := placeholder[3 : len(placeholder)-2]
		reference := Parse(body)
		if reference.Kind == KindUnknown {
			return placeholder
		}
		value, _ := resolve(reference, env, ctx)
		return value
	})
}

// ExpandMap returns a copy of values with every value expanded.
func ExpandMap(values map[string]string, env map[string]string, ctx *Context) map[string]string {
	if values == nil {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		result[key] = Expand(value, env, ctx)
	}
	return result
}

// Lookup resolves a single expression, which may or may not be wrapped
// in ${{ }}. found is false when the expression is unknown, or when
// the referenced value was never produced. Used for output extraction,
// where a missing value means the output is omitted.
func Lookup(expression string, env map[string]string, ctx *Context) (value string, found bool) {
	body := unwrap(expression)
	reference := Parse(body)
	if reference.Kind == KindUnknown {
		return "", false
	}
	return resolve(reference, env, ctx)
}

// SecretNames returns the sorted, de-duplicated names referenced as
// secrets.<name> inside placeholders of text.
func SecretNames(texts ...string) []string {
	seen := make(map[string]bool)
	for _, text := range texts {
		for _, match := range placeholderPattern.FindAllStringSubmatch(text, -1) {
			for _, name := range secretReferencePattern.FindAllStringSubmatch(match[1], -1) {
				seen[name[1]] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var secretReferencePattern = regexp.MustCompile(`\bsecrets\.([A-Za-z_][A-Za-z0-9_]*)`)

func resolve(reference Reference, env map[string]string, ctx *Context) (string, bool) {
	if ctx == nil {
		ctx = &Context{}
	}
	switch reference.Kind {
	case KindLiteral:
		return reference.Arguments[0], true
	case KindEnv:
		value, ok := env[reference.Path[0]]
		return value, ok
	case KindSecrets:
		value, ok := ctx.Secrets[reference.Path[0]]
		return value, ok
	case KindMatrix:
		value, ok := ctx.Matrix[reference.Path[0]]
		return formatValue(value), ok
	case KindInputs:
		value, ok := ctx.Inputs[reference.Path[0]]
		return formatValue(value), ok
	case KindRunner:
		value, ok := ctx.Runner[reference.Path[0]]
		return value, ok
	case KindSteps:
		return nestedLookup(ctx.Steps, reference.Path[0], reference.Path[2])
	case KindNeeds:
		return nestedLookup(ctx.Needs, reference.Path[0], reference.Path[2])
	case KindJobs:
		return nestedLookup(ctx.Jobs, reference.Path[0], reference.Path[2])
	case KindGitHub:
		if reference.Path[0] == "event" && len(reference.Path) > 1 {
			return eventLookup(ctx.Event, reference.Path[1:])
		}
		value, ok := ctx.GitHub[reference.Path[0]]
		return value, ok
	case KindHashFiles:
		digest, err := HashFiles(ctx.Workspace, reference.Arguments...)
		if err != nil || digest == "" {
			return "", false
		}
		return digest, true
	default:
		return "", false
	}
}

func nestedLookup(values map[string]map[string]string, id, name string) (string, bool) {
	outputs, ok := values[id]
	if !ok {
		return "", false
	}
	value, ok := outputs[name]
	return value, ok
}

func eventLookup(event map[string]any, path []string) (string, bool) {
	var current any = event
	for _, segment := range path {
		object, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = object[segment]
		if !ok {
			return "", false
		}
	}
	return formatValue(current), true
}

// formatValue renders a context value the way it is substituted into
// text: strings as-is, whole numbers without a fraction, containers
// as JSON.
func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case map[string]any, []any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return ""
		}
		return string(encoded)
	default:
		return fmt.Sprint(typed)
	}
}

func unwrap(expression string) string {
	trimmed := strings.TrimSpace(expression)
	if strings.HasPrefix(trimmed, "${{") && strings.HasSuffix(trimmed, "}}") {
		return trimmed[3 : len(trimmed)-2]
	}
	return trimmed
}

// parseStringLiteral parses a single-quoted literal, where '' is an
// escaped quote.
func parseStringLiteral(body string) (string, bool) {
	if len(body) < 2 || body[0] != '\'' || body[len(body)-1] != '\'' {
		return "", false
	}
	inner := body[1 : len(body)-1]
	if strings.Count(strings.ReplaceAll(inner, "''", ""), "'") != 0 {
		return "", false
	}
	return strings.ReplaceAll(inner, "''", "'"), true
}

// parseArguments splits a comma-separated list of string literals.
func parseArguments(list string) ([]string, bool) {
	var arguments []string
	for _, raw := range strings.Split(list, ",") {
		argument, ok := parseStringLiteral(strings.TrimSpace(raw))
		if !ok {
			return nil, false
		}
		arguments = append(arguments, argument)
	}
	return arguments, true
}
