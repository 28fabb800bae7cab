package email

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rumor-ml/commons.systems/spentsync/internal/domain"
)

// PatternSet is one known alert format: which source tag to stamp and which
// captures locate the merchant and the amount in the unescaped body.
type PatternSet struct {
	Name   string
	Source string
	// Description must capture a group named "description"
	Description *regexp.Regexp
	// Debit and Credit capture a group named "amount". Debit is tried first;
	// a Credit match flips the sign. Either may be nil.
	Debit  *regexp.Regexp
	Credit *regexp.Regexp
	// FirstPart reads the first MIME part instead of the whole body
	FirstPart bool
}

// Alert formats. All patterns run in multi-line, dot-matches-newline mode.
var (
	// >Merchant</td><td ...>SP IGLOOPRODUCTSCORP</td>
	ChasePatterns = &PatternSet{
		Name:        "chase",
		Source:      domain.SourceEmailChase,
		Description: regexp.MustCompile(`(?ms)>Merchant<[^<]+<td [^>]+>(?P<description>[^<]+)</td>`),
		Debit:       regexp.MustCompile(`(?ms)>Amount<[^<]+<td [^>]+>[$](?P<amount>[0-9.,]+)</td>`),
		Credit:      regexp.MustCompile(`(?ms)>Credit Amount<[^<]+<td [^>]+>[$](?P<amount>[0-9.,]+)</td>`),
	}

	// >Merchant: </td><td ...> SP IGLOOPRODUCTSCORP</td>
	JPMorganPatterns = &PatternSet{
		Name:        "jpmorgan",
		Source:      domain.SourceEmailChase,
		Description: regexp.MustCompile(`(?ms)>Merchant: <[^<]+<td [^>]+> (?P<description>[^<]+)</td>`),
		Debit: regexp.MustCompile(`(?ms)>Authorized  (incremental )?amount:` +
			`(<sup[^<]+<str[^<]+</strong></sup>)?` +
			` <[^<]+<td [^>]+> [$](?P<amount>[0-9.,]+)  </td>`),
	}

	// From: VANGUARD SELL
	// You received a deposit for $444.98 to your account ending in 9552.
	USAADepositPatterns = &PatternSet{
		Name:        "usaa-deposit",
		Source:      domain.SourceEmailUSAA,
		Description: regexp.MustCompile(`(?ms)From: (?P<description>[A-Z ]+)`),
		Credit:      regexp.MustCompile(`(?ms)You received a deposit for [$](?P<amount>[0-9.,]+) to your`),
		FirstPart:   true,
	}

	// You received a deposit of $444.98 to your account ...9552.
	USAA2DepositPatterns = &PatternSet{
		Name:        "usaa2-deposit",
		Source:      domain.SourceEmailUSAA,
		Description: regexp.MustCompile(`(?ms)From: (?P<description>[A-Z ]+)`),
		Credit:      regexp.MustCompile(`(?ms)You received a deposit of [$](?P<amount>[0-9.,]+) to your`),
		FirstPart:   true,
	}

	// To: ROCKY MOUNTAIN P SALE
	// $25.00 came out of your account
	USAADebitPatterns = &PatternSet{
		Name:        "usaa-debit",
		Source:      domain.SourceEmailUSAA,
		Description: regexp.MustCompile(`(?ms)To: (?P<description>[A-Za-z ]+)`),
		Debit:       regexp.MustCompile(`(?ms)[$](?P<amount>[0-9.,]+) came out of your account`),
		FirstPart:   true,
	}
)

type rule struct {
	from     string
	subject  string
	patterns *PatternSet
}

// Sender rules are checked before subject rules.
var rules = []rule{
	{from: "@chase.com", patterns: ChasePatterns},
	{from: "@jpmorgan.com", patterns: JPMorganPatterns},
	{subject: "USAA: Your Bank Account Received a Deposit", patterns: USAADepositPatterns},
	{subject: "Deposit to Your Bank Account", patterns: USAA2DepositPatterns},
	{subject: "Debit Alert for Your USAA Bank Account", patterns: USAADebitPatterns},
}

// Classify selects the pattern set for a message by sender address or subject
// substring. Unrecognised messages fail with domain.ErrUnknownDocumentFormat.
func Classify(from, subject string) (*PatternSet, error) {
	for _, r := range rules {
		if r.from != "" && strings.Contains(from, r.from) {
			return r.patterns, nil
		}
		if r.subject != "" && strings.Contains(subject, r.subject) {
			return r.patterns, nil
		}
	}
	return nil, fmt.Errorf("%w: from %q subject %q", domain.ErrUnknownDocumentFormat, from, subject)
}
