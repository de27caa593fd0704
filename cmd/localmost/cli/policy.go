// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"log/slog"

	"github.com/localmost/localmost/lib/config"
	"github.com/localmost/localmost/lib/policy"
	"github.com/localmost/localmost/lib/policycache"
)

// LoadPolicy reads the policy document at root. A repository without
// one yields a nil document and an empty path. Parser warnings are
// logged.
func LoadPolicy(root string, logger *slog.Logger) (*policy.Document, string, error) {
	path, err := policy.FindDocument(root)
	if errors.Is(err, policy.ErrNoDocument) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	document, warnings, err := policy.ReadDocument(path)
	if err != nil {
		return nil, path, err
	}
	for _, warning := range warnings {
		logger.Warn("policy document", "path", path, "warning", warning)
	}
	return document, path, nil
}

// OpenGate returns the approval gate over the configured policy cache.
// approver may be nil for commands that never prompt.
func OpenGate(cfg *config.Config, approver policycache.Approver, logger *slog.Logger) (*policycache.Gate, *policycache.Store, error) {
	store, err := policycache.NewStore(cfg.Paths.Policies)
	if err != nil {
		return nil, nil, err
	}
	return policycache.NewGate(store, approver, policycache.GateOptions{Logger: logger}), store, nil
}
