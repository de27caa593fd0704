// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"errors"
	"fmt"
	"os"
)

// ReadFile reads a key or token file into a protected buffer, trimming
// surrounding whitespace. The heap copy used for reading is zeroed
// before returning. Empty files are an error.
func ReadFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer Zero(data)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("secret file is empty")
	}
	buffer, err := NewFromBytes(trimmed)
	if err != nil {
		return nil, fmt.Errorf("protecting %s: %w", path, err)
	}
	return buffer, nil
}
