package classifier

import (
	"regexp"

	"fundledger/src/model"
)

// Version is stored on every classified row. Bumping it after a rule
// change marks existing rows as stale so a replay can pick them up.
const Version = 1

// AccountDirectory is the cross-record context a classification may
// consult: whether an annotation references an onboarded account, and
// whether that account is a designated extraction destination.
type AccountDirectory interface {
	IsKnownAccount(number string) bool
	IsExtractionAccount(number string) bool
}

var (
	// Structured funding references, e.g. "DEP-20240117" or "client deposit".
	depositRefPattern = regexp.MustCompile(`(?i)\b(?:dep|dpst)[-/]\d+|\bclient\s+deposit\b`)
	// Structured withdrawal references, e.g. "WD-1044" or "client withdrawal".
	withdrawalRefPattern = regexp.MustCompile(`(?i)\b(?:wd|wdl)[-/]\d+|\bclient\s+withdrawal\b`)
	// Fee/commission references, e.g. "FEE-77", "monthly commission".
	feeRefPattern = regexp.MustCompile(`(?i)\b(?:fee|commission)\b`)
	// Candidate account numbers mentioned in free text, e.g.
	// "transfer to #100200" or "from 100200".
	accountRefPattern = regexp.MustCompile(`#?(\d{5,})`)
)

// Classify derives the semantic category for one raw record. It is a
// pure function of the record and the directory: identical input always
// yields the same category, so replaying the full history after a rule
// change is safe.
//
// Precedence (first match wins):
//  1. buy/sell type codes are trades
//  2. structured funding reference, money in: client deposit
//  3. structured withdrawal reference, money out: client withdrawal
//  4. money out referencing a designated extraction account: profit extraction
//  5. reference to another onboarded account: internal transfer
//  6. fee reference: fee
//  7. everything else stays unclassified for manual review
func Classify(rec *model.RawRecord, dir AccountDirectory) model.Category {
	if rec.IsTradeType() {
		return model.CategoryTrade
	}

	if depositRefPattern.MatchString(rec.Annotation) && rec.Delta.IsPositive() {
		return model.CategoryClientDeposit
	}

	if withdrawalRefPattern.MatchString(rec.Annotation) && rec.Delta.IsNegative() {
		return model.CategoryClientWithdrawal
	}

	refs := referencedAccounts(rec.Annotation, rec.AccountNumber)

	if rec.Delta.IsNegative() {
		for _, ref := range refs {
			if dir.IsExtractionAccount(ref) {
				return model.CategoryProfitExtraction
			}
		}
	}

	for _, ref := range refs {
		if dir.IsKnownAccount(ref) {
			return model.CategoryInternalTransfer
		}
	}

	if feeRefPattern.MatchString(rec.Annotation) {
		return model.CategoryFee
	}

	// No recognizable pattern. Never guess: a wrong deposit or
	// extraction directly corrupts P&L.
	return model.CategoryUnclassified
}

// referencedAccounts extracts candidate account numbers from an
// annotation, skipping the record's own account.
func referencedAccounts(annotation, own string) []string {
	matches := accountRefPattern.FindAllStringSubmatch(annotation, -1)
	if len(matches) == 0 {
		return nil
	}

	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		if m[1] == own {
			continue
		}
		refs = append(refs, m[1])
	}
	return refs
}
