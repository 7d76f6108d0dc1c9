package process

import "strings"

// EscapeArg escapes a single argument for a Windows command line, following
// the rules CommandLineToArgvW uses to undo it:
//
//   - an argument with no space, tab, quote or backslash is passed verbatim;
//   - 2n backslashes before a quote become n backslashes and the quote is a
//     delimiter, so backslashes preceding a quote (or the closing quote of a
//     quoted argument) must be doubled;
//   - a literal quote is written as backslash-quote;
//   - backslashes anywhere else are literal and left alone.
//
// This file is portable so the escaper can be unit tested on any platform;
// only the Windows spawn path uses it.
func EscapeArg(arg string) string {
	if arg == "" {
		return `""`
	}
	if !strings.ContainsAny(arg, " \t\"\\") {
		return arg
	}

	needsQuotes := strings.ContainsAny(arg, " \t")
	var b strings.Builder
	b.Grow(len(arg) + 2)

	if needsQuotes {
		b.WriteByte('"')
	}

	slashes := 0
	for i := 0; i < len(arg); i++ {
		c := arg[i]
		switch c {
		case '\\':
			slashes++
		case '"':
			// Double the run of backslashes, then escape the quote itself.
			for ; slashes >= 0; slashes-- {
				b.WriteByte('\\')
			}
			slashes = 0
		default:
			slashes = 0
		}
		b.WriteByte(c)
	}

	if needsQuotes {
		// Backslashes before the closing quote would otherwise escape it.
		for ; slashes > 0; slashes-- {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}

	return b.String()
}

// JoinCommandLine renders an argument vector as a single Windows command
// line, escaping each argument.
func JoinCommandLine(args []string) string {
	escaped := make([]string, 0, len(args))
	for _, a := range args {
		escaped = append(escaped, EscapeArg(a))
	}
	return strings.Join(escaped, " ")
}
