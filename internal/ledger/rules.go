package ledger

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleKind tags the behavior variant of a rule.
type RuleKind string

const (
	// RuleKindRename replaces the transaction description.
	RuleKindRename RuleKind = "rename"
	// RuleKindComplement adds entries that offset the current imbalance.
	RuleKindComplement RuleKind = "complement"
	// RuleKindMerge merges a matching counterpart transaction into this one.
	RuleKindMerge RuleKind = "merge"
)

// SideFilter narrows which entry sides a rule considers.
type SideFilter string

const (
	SideFilterDebit  SideFilter = "debit"
	SideFilterCredit SideFilter = "credit"
	SideFilterBoth   SideFilter = "both"
)

// Valid reports whether f is a known side filter.
func (f SideFilter) Valid() bool {
	return f == SideFilterDebit || f == SideFilterCredit || f == SideFilterBoth
}

// Action is the behavior payload of a rule. Exactly one concrete variant is
// attached per rule; each variant carries only its own configuration.
type Action interface {
	Kind() RuleKind
}

// RenameAction replaces the transaction description with a fixed string.
type RenameAction struct {
	Replacement string
}

func (RenameAction) Kind() RuleKind { return RuleKindRename }

// Destination is one target of a complementary-add. Either Ratio or Amount
// is set per rule: ratio destinations split the imbalance proportionally
// (ratios summing to 1), fixed destinations post their absolute amount.
type Destination struct {
	AccountID uuid.UUID
	Ratio     decimal.Decimal
	Amount    decimal.Decimal
}

// ComplementAction generates entries on the missing side whose total offsets
// the current imbalance, distributed across Destinations.
type ComplementAction struct {
	Destinations []Destination
	// Fixed selects absolute-amount distribution instead of ratios.
	Fixed bool
}

func (ComplementAction) Kind() RuleKind { return RuleKindComplement }

// MergeAction locates a counterpart transaction by secondary pattern and
// account filter, dated within MaxDateDiff days, and merges it in.
type MergeAction struct {
	Pattern   string
	AccountID *uuid.UUID
	// MaxDateDiff is the calendar-day distance allowed between the two
	// transactions, 1 to 15 inclusive.
	MaxDateDiff int
}

func (MergeAction) Kind() RuleKind { return RuleKindMerge }

// Rule is a declarative, pattern-matched mutation of transactions. Rules are
// the only source of autonomous transaction changes, either on every write
// (AutoApply) or via an explicit bulk scan.
type Rule struct {
	ID   uuid.UUID
	Name string
	// Pattern is matched case-insensitively as a regular expression against
	// the transaction description.
	Pattern string
	// AccountIDs restricts the rule to transactions touching at least one of
	// these accounts. Empty applies to all accounts.
	AccountIDs []uuid.UUID
	SideFilter SideFilter
	AutoApply  bool
	CreatedAt  time.Time
	Action     Action
}

// CompilePattern compiles a rule pattern as a case-insensitive regexp.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// Matches reports whether the rule applies to the transaction: the pattern
// matches the description, the account filter (if any) intersects the entry
// accounts, and the side filter (if not "both") is present among the entries.
func (r Rule) Matches(t Transaction) bool {
	re, err := CompilePattern(r.Pattern)
	if err != nil || !re.MatchString(t.Description) {
		return false
	}
	if len(r.AccountIDs) > 0 {
		found := false
		for _, e := range t.Entries {
			for _, id := range r.AccountIDs {
				if e.AccountID == id {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	if r.SideFilter != "" && r.SideFilter != SideFilterBoth {
		want := Side(r.SideFilter)
		found := false
		for _, e := range t.Entries {
			if e.Side == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
