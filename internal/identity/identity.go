package identity

import (
	"fmt"
	"regexp"
	"strings"

	"pnl-arena/internal/errs"
)

// Marker is the optional leading character of a displayed handle.
const Marker = "@"

var handlePattern = regexp.MustCompile(`@\w+`)

// Canonicalize strips a single leading marker and lowercases the rest.
// Inner whitespace is kept verbatim.
func Canonicalize(raw string) string {
	return strings.ToLower(strings.TrimPrefix(raw, Marker))
}

// Display returns the marker-prefixed form of a handle, keeping its case.
func Display(raw string) string {
	return Marker + strings.TrimPrefix(raw, Marker)
}

// Predicate selects every trade record that denotes the same trader.
type Predicate struct {
	AccountID string
	Canonical string
}

// MatchPredicate builds a predicate from an account id, a raw handle or both.
// A raw handle matches its exact form, its marker-prefixed and unprefixed variants,
// case-insensitively. An account id matches records submitted from that account.
func MatchPredicate(accountID, raw string) (Predicate, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" && raw == "" {
		return Predicate{}, fmt.Errorf("%w: account id or handle required", errs.ErrInvalidConfiguration)
	}
	p := Predicate{AccountID: accountID}
	if raw != "" {
		p.Canonical = Canonicalize(raw)
	}
	return p, nil
}

// Matches reports whether a record with the given account id and raw handle is selected.
func (p Predicate) Matches(accountID, raw string) bool {
	if p.AccountID != "" && strings.TrimSpace(accountID) == p.AccountID {
		return true
	}
	return p.Canonical != "" && Canonicalize(raw) == p.Canonical
}

// ParseHandles extracts marker-prefixed handles from free text, in order, without duplicates
// by canonical identity.
func ParseHandles(text string) []string {
	found := handlePattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(found))
	handles := make([]string, 0, len(found))
	for _, h := range found {
		key := Canonicalize(h)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		handles = append(handles, h)
	}
	return handles
}
