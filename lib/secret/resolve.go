// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/joho/godotenv"
)

// Mode selects where secret values come from.
type Mode string

const (
	// ModeStub injects a placeholder for every referenced secret.
	ModeStub Mode = "stub"

	// ModeEnv reads each referenced secret from the caller's
	// environment.
	ModeEnv Mode = "env"

	// ModeFile reads secrets from a dotenv file, optionally
	// age-encrypted.
	ModeFile Mode = "file"
)

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	switch mode := Mode(name); mode {
	case ModeStub, ModeEnv, ModeFile:
		return mode, nil
	case "":
		return ModeStub, nil
	default:
		return "", fmt.Errorf("unknown secret mode %q (valid: stub, env, file)", name)
	}
}

// Options configures Resolve.
type Options struct {
	Mode Mode

	// Names are the secrets the workflow references.
	Names []string

	// Required must resolve to a value in env and file modes.
	Required []string

	// File is the dotenv file read in file mode.
	File string

	// AgeIdentity is an age identity file used to decrypt File. It is
	// required when File is age-encrypted.
	AgeIdentity string

	// LookupEnv reads the environment in env mode. Defaults to
	// os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Resolve builds the secret set for a run. In stub mode every name in
// Names and Required gets StubValue. In env mode each name is looked
// up in the environment. In file mode every entry of the file is
// loaded. Missing required secrets are an error listing all of them.
func Resolve(options Options) (*Set, error) {
	set := NewSet()
	var err error
	switch options.Mode {
	case ModeStub, "":
		set.stubbed = true
		for _, name := range unionNames(options.Names, options.Required) {
			if err = set.Add(name, StubValue(name)); err != nil {
				break
			}
		}
	case ModeEnv:
		err = resolveEnv(set, options)
	case ModeFile:
		err = resolveFile(set, options)
	default:
		err = fmt.Errorf("unknown secret mode %q", options.Mode)
	}
	if err == nil {
		err = checkRequired(set, options.Required)
	}
	if err != nil {
		set.Close()
		return nil, err
	}
	return set, nil
}

func resolveEnv(set *Set, options Options) error {
	lookup := options.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, name := range unionNames(options.Names, options.Required) {
		if value, ok := lookup(name); ok {
			if err := set.Add(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolveFile(set *Set, options Options) error {
	if options.File == "" {
		return fmt.Errorf("secret mode %q requires a secret file", ModeFile)
	}
	plaintext, err := readSecretFile(options.File, options.AgeIdentity)
	if err != nil {
		return err
	}
	defer Zero(plaintext)

	entries, err := godotenv.Parse(bytes.NewReader(plaintext))
	if err != nil {
		return fmt.Errorf("parsing secret file %s: %w", options.File, err)
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := set.Add(name, entries[name]); err != nil {
			return err
		}
	}
	return nil
}

// readSecretFile returns the file contents, decrypted when the file is
// an age file (binary or armored).
func readSecretFile(path, identityPath string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading secret file: %w", err)
	}

	var ciphertext io.Reader
	switch {
	case bytes.HasPrefix(data, []byte("age-encryption.org/")):
		ciphertext = bytes.NewReader(data)
	case bytes.HasPrefix(bytes.TrimSpace(data), []byte(armor.Header)):
		ciphertext = armor.NewReader(bytes.NewReader(data))
	default:
		return data, nil
	}

	if identityPath == "" {
		return nil, fmt.Errorf("secret file %s is age-encrypted; pass --age-identity", path)
	}
	identities, err := readIdentities(identityPath)
	if err != nil {
		return nil, err
	}
	reader, err := age.Decrypt(ciphertext, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", path, err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		Zero(plaintext)
		return nil, fmt.Errorf("reading decrypted %s: %w", path, err)
	}
	return plaintext, nil
}

func readIdentities(path string) ([]age.Identity, error) {
	key, err := ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading age identity: %w", err)
	}
	defer key.Close()

	identities, err := age.ParseIdentities(bufio.NewReader(bytes.NewReader(key.Bytes())))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity %s: %w", path, err)
	}
	return identities, nil
}

func checkRequired(set *Set, required []string) error {
	var missing []string
	for _, name := range required {
		if value, ok := set.Lookup(name); !ok || value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("required secrets not provided: %s", strings.Join(missing, ", "))
	}
	return nil
}

func unionNames(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, list := range lists {
		for _, name := range list {
			if _, dup := seen[name]; dup || name == "" {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
