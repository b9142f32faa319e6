// Package naming generates and validates the names forage-pr puts on
// remote state: task branches and fork repositories.
package naming

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
)

const (
	// BranchPrefix starts every task branch.
	BranchPrefix = "issue-"

	// SuffixLen is the hex suffix length of newly generated branches.
	SuffixLen = 12

	// LegacySuffixLen is the hex suffix length of branches created by
	// older releases, still accepted when continuing work.
	LegacySuffixLen = 8
)

// branchRegex accepts issue-<digits>-<8 or 12 lowercase hex>.
var branchRegex = regexp.MustCompile(`^issue-([0-9]+)-([0-9a-f]{8}|[0-9a-f]{12})$`)

// randRead is swapped in tests.
var randRead = rand.Read

// NewBranchName returns issue-<issue>-<12 hex> with a random suffix.
func NewBranchName(issue int) (string, error) {
	if issue <= 0 {
		return "", fmt.Errorf("issue number must be positive (got %d)", issue)
	}
	buf := make([]byte, SuffixLen/2)
	if _, err := randRead(buf); err != nil {
		return "", fmt.Errorf("failed to generate branch suffix: %w", err)
	}
	return fmt.Sprintf("%s%d-%s", BranchPrefix, issue, hex.EncodeToString(buf)), nil
}

// ValidateBranchName checks that name is a task branch: "issue-", decimal
// digits, "-", and exactly 8 or 12 lowercase hex characters.
func ValidateBranchName(name string) error {
	if name == "" {
		return fmt.Errorf("branch name cannot be empty")
	}
	if !branchRegex.MatchString(name) {
		return fmt.Errorf("invalid branch name %q: must match issue-<digits>-<8 or 12 lowercase hex>", name)
	}
	return nil
}

// IsValidBranchName reports whether ValidateBranchName accepts name.
func IsValidBranchName(name string) bool {
	return branchRegex.MatchString(name)
}

// ParseBranchName splits a valid task branch into its issue number and
// hex suffix.
func ParseBranchName(name string) (issue int, suffix string, err error) {
	m := branchRegex.FindStringSubmatch(name)
	if m == nil {
		return 0, "", ValidateBranchName(name)
	}
	issue, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, "", fmt.Errorf("invalid issue number in branch %q: %w", name, err)
	}
	return issue, m[2], nil
}
