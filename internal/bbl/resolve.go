// Package bbl derives canonical borough-block-lot parcel identifiers from
// partial permit data. Resolution is a pure function: malformed input is
// rejected, never truncated or guessed at.
package bbl

import (
	"fmt"
	"strings"
)

const (
	blockDigits = 5
	lotDigits   = 4
)

// boroughNames maps legacy permit-number borough digits to borough names,
// used only to cross-check separately reported borough names.
var boroughNames = map[byte]string{
	'1': "manhattan",
	'2': "bronx",
	'3': "brooklyn",
	'4': "queens",
	'5': "staten island",
}

// InvalidInputError reports why a permit's fields could not be resolved into
// a BBL. Callers leave the permit unlinked and surface the reason as a
// warning; resolution failures are never retried.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("bbl: %s", e.Reason)
}

// Resolve derives the 10-digit BBL from a permit's block, lot, and permit
// number. The borough digit comes from the first character of the permit
// number; block and lot are zero-padded to 5 and 4 digits.
func Resolve(block, lot, permitNumber string) (string, error) {
	if permitNumber == "" {
		return "", &InvalidInputError{Reason: "unknown borough code"}
	}
	borough := permitNumber[0]
	if _, ok := boroughNames[borough]; !ok {
		return "", &InvalidInputError{Reason: "unknown borough code"}
	}

	paddedBlock, err := padNumeric(block, blockDigits, "invalid block")
	if err != nil {
		return "", err
	}
	paddedLot, err := padNumeric(lot, lotDigits, "invalid lot")
	if err != nil {
		return "", err
	}

	return string(borough) + paddedBlock + paddedLot, nil
}

// ResolveWithBorough resolves as Resolve does, additionally comparing the
// derived borough digit against a separately reported borough name. A
// mismatch does not fail resolution; it returns a non-empty warning the
// caller should log, since the permit-number convention is the legacy signal
// and the two sources are known to occasionally disagree.
func ResolveWithBorough(block, lot, permitNumber, reportedBorough string) (id string, warning string, err error) {
	id, err = Resolve(block, lot, permitNumber)
	if err != nil {
		return "", "", err
	}
	reported := strings.ToLower(strings.TrimSpace(reportedBorough))
	if reported == "" {
		return id, "", nil
	}
	if derived := boroughNames[permitNumber[0]]; derived != reported {
		warning = fmt.Sprintf("borough mismatch: permit number implies %q, record reports %q", derived, reported)
	}
	return id, warning, nil
}

func padNumeric(s string, width int, reason string) (string, error) {
	if s == "" || len(s) > width {
		return "", &InvalidInputError{Reason: reason}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", &InvalidInputError{Reason: reason}
		}
	}
	return strings.Repeat("0", width-len(s)) + s, nil
}
