// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"testing"

	"github.com/localmost/localmost/lib/testutil"
)

func TestCompileOptions(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		".localmostrc": `version: 1
shared:
  network:
    allow: [registry.npmjs.org]
workflows:
  deploy:
    network:
      allow: [api.example.com]
`,
		"config.yaml": "paths:\n  root: " + filepath.Join(root, "state") + "\n",
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name      string
		params    profileParams
		wantHosts []string
		wantTrace string
	}{
		{
			name:      "shared only",
			params:    profileParams{WorkDir: root},
			wantHosts: []string{"registry.npmjs.org"},
		},
		{
			name:      "workflow override",
			params:    profileParams{WorkDir: root, Workflow: "deploy"},
			wantHosts: []string{"api.example.com", "registry.npmjs.org"},
		},
		{
			name:      "trace needs permissive",
			params:    profileParams{WorkDir: root, Trace: "trace.log"},
			wantHosts: []string{"registry.npmjs.org"},
		},
		{
			name:      "permissive trace",
			params:    profileParams{WorkDir: root, Permissive: true, Trace: filepath.Join(root, "trace.log")},
			wantHosts: []string{"registry.npmjs.org"},
			wantTrace: filepath.Join(root, "trace.log"),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.params.Config = filepath.Join(root, "config.yaml")
			options, err := test.params.compileOptions(context.Background(), logger)
			if err != nil {
				t.Fatal(err)
			}
			if options.WorkDir != root {
				t.Errorf("WorkDir = %q, want %q", options.WorkDir, root)
			}
			if options.Policy == nil || options.Policy.Network == nil {
				t.Fatalf("policy = %+v, want a network section", options.Policy)
			}
			hosts := slices.Clone(options.Policy.Network.Allow)
			slices.Sort(hosts)
			if !slices.Equal(hosts, test.wantHosts) {
				t.Errorf("network.allow = %q, want %q", hosts, test.wantHosts)
			}
			if options.LogDestination != test.wantTrace {
				t.Errorf("LogDestination = %q, want %q", options.LogDestination, test.wantTrace)
			}
			if options.Permissive != test.params.Permissive {
				t.Errorf("Permissive = %v, want %v", options.Permissive, test.params.Permissive)
			}
		})
	}
}
