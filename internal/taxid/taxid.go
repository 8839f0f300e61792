// Package taxid provides validation and formatting for Chilean national
// tax identifiers (RUT/RUN).
//
// A RUT consists of a numeric body and a single verifier character
// (digit or 'K') computed with a Modulo-11 checksum. All functions are
// pure and tolerate arbitrary garbage input: validation failures are
// reported as a boolean, never as an error, so callers can use them
// directly in form validation.
package taxid

import "strings"

// Clean normalizes a raw identifier: strips '.' and '-' separators,
// trims whitespace and uppercases the result.
func Clean(input string) string {
	s := strings.TrimSpace(input)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, "-", "")
	return strings.ToUpper(s)
}

// Validate reports whether input is a structurally and arithmetically
// valid RUT. Bodies of arbitrary length are accepted; the verifier may
// be supplied in either case.
func Validate(input string) bool {
	cleaned := Clean(input)
	if len(cleaned) < 2 {
		return false
	}

	body := cleaned[:len(cleaned)-1]
	check := cleaned[len(cleaned)-1]

	expected, ok := CheckDigit(body)
	if !ok {
		return false
	}
	return check == expected
}

// CheckDigit computes the expected verifier character for a numeric
// body. ok is false if the body is empty or contains a non-digit.
func CheckDigit(body string) (byte, bool) {
	if body == "" {
		return 0, false
	}

	sum := 0
	weight := 2
	for i := len(body) - 1; i >= 0; i-- {
		c := body[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		sum += int(c-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}

	switch remainder := 11 - sum%11; remainder {
	case 11:
		return '0', true
	case 10:
		return 'K', true
	default:
		return byte('0' + remainder), true
	}
}

// Format returns the canonical display form of an identifier: the body
// grouped in thousands with '.' and the verifier appended after '-'
// (e.g. "123456785" -> "12.345.678-5").
//
// Format never validates; it is applied even to invalid identifiers and
// returns a best-effort string. Because Clean strips existing
// separators first, Format is idempotent.
func Format(input string) string {
	cleaned := Clean(input)
	if len(cleaned) < 2 {
		return cleaned
	}

	body := cleaned[:len(cleaned)-1]
	check := cleaned[len(cleaned)-1]

	var b strings.Builder
	for i, c := range body {
		if i > 0 && (len(body)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(c)
	}
	b.WriteByte('-')
	b.WriteByte(check)
	return b.String()
}
