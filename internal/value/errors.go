// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package value

import "github.com/experimaestro/experimaestro-go/internal/xerrors"

// SealedError builds the sealed_error raised when Set is called on a
// sealed value (spec.md section 4.3).
func SealedError(key string) *xerrors.Error {
	return xerrors.Sealed("cannot set %q: value is sealed", key)
}

func sealedTypeError(v *Value) error {
	return xerrors.Assertion("Set called on a non-map value (kind=%d)", v.Kind)
}

// ReservedKeyError builds the argument_error raised when one of the
// four reserved document keys ($type/$task/$value/$job) is set
// directly as an ordinary argument, mirroring xpm.cpp's RESTRICTED_KEYS
// check in MapParameters::set.
func ReservedKeyError(key string) *xerrors.Error {
	return xerrors.Argument("cannot access directly to %s", key)
}
