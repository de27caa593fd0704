// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/localmost/localmost/lib/testutil"
)

func TestResolveWorkflowPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		".github/workflows/ci.yml":      "jobs: {}\n",
		".github/workflows/deploy.yaml": "jobs: {}\n",
		"elsewhere/custom.yml":          "jobs: {}\n",
	})
	workflows := filepath.Join(root, ".github", "workflows")

	tests := []struct {
		name string
		arg  string
		want string
	}{
		{"bare name", "ci", filepath.Join(workflows, "ci.yml")},
		{"yaml extension", "deploy", filepath.Join(workflows, "deploy.yaml")},
		{"file name", "ci.yml", filepath.Join(workflows, "ci.yml")},
		{"explicit path", filepath.Join(root, "elsewhere", "custom.yml"), filepath.Join(root, "elsewhere", "custom.yml")},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveWorkflowPath(root, test.arg)
			if err != nil {
				t.Fatalf("ResolveWorkflowPath(%q) failed: %v", test.arg, err)
			}
			if got != test.want {
				t.Errorf("ResolveWorkflowPath(%q) = %q, want %q", test.arg, got, test.want)
			}
		})
	}

	t.Run("missing lists available", func(t *testing.T) {
		t.Parallel()
		_, err := ResolveWorkflowPath(root, "release")
		if err == nil {
			t.Fatal("expected an error for a missing workflow")
		}
		if !strings.Contains(err.Error(), "available: ci, deploy") {
			t.Errorf("error = %q, want the available workflows listed", err)
		}
	})
}
