// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret resolves the secret values a workflow run needs and
// keeps them out of logs.
//
// [Resolve] builds a [Set] in one of three modes: stub (placeholders,
// the default, so workflows run without real credentials), env (the
// caller's environment), or file (a dotenv file, decrypted with an age
// identity when it is age-encrypted). Required secrets, declared by the
// policy document's secrets.require, must resolve to a value outside
// stub mode.
//
// Values are held in a [Buffer]: an anonymous mapping outside the Go
// heap, locked against swapping and zeroed on Close. They leave the
// buffer only at the process-environment boundary.
//
// [Redactor] masks secret values in streamed step output.
package secret
