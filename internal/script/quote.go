// SPDX-FileCopyrightText: 2025 Experimaestro Authors
// SPDX-License-Identifier: Apache-2.0

package script

import "strings"

// shQuote wraps s in single quotes, escaping any embedded single quote
// as '\'' -- the same POSIX idiom used by internal/connector/ssh.
func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// shQuoteDouble escapes s for interpolation inside a double-quoted
// shell string (spec.md section 4.5 step 6: backslash '"' and '$').
func shQuoteDouble(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	return r.Replace(s)
}
