// Package format renders human-readable invoice numbers from templates.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const DefaultInvoiceNumberTemplate = "INV-{YYYY}{MM}{DD}-{SEQ6}"

var tokenRe = regexp.MustCompile(`\{(YYYY|YY|MM|DD|SEQ\d*)\}`)

// FormatInvoiceNumber expands template tokens against the issue time and
// a per-owner sequence. Deterministic; callers own sequence allocation
// and collision handling.
//
// Tokens: {YYYY} {YY} {MM} {DD}, {SEQ} for the bare sequence, {SEQn} for
// the sequence zero-padded to n digits.
func FormatInvoiceNumber(template string, issuedAt time.Time, seq int64) (string, error) {
	if template == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := tokenRe.ReplaceAllStringFunc(template, func(m string) string {
		return resolveToken(m[1:len(m)-1], issuedAt, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice format: %s", out)
	}
	return out, nil
}

func resolveToken(token string, issuedAt time.Time, seq int64) string {
	switch token {
	case "YYYY":
		return issuedAt.Format("2006")
	case "YY":
		return issuedAt.Format("06")
	case "MM":
		return issuedAt.Format("01")
	case "DD":
		return issuedAt.Format("02")
	case "SEQ":
		return strconv.FormatInt(seq, 10)
	}

	// SEQn with explicit zero padding.
	width, err := strconv.Atoi(strings.TrimPrefix(token, "SEQ"))
	if err != nil || width <= 0 {
		return "{" + token + "}"
	}
	return fmt.Sprintf("%0*d", width, seq)
}
