// Package policy implements the pre-trade compliance evaluator of the
// securities demo: investment limit, KYC validity window and token
// eligibility rules over a single decrypted investor record. Every
// malformed input evaluates to an explicit denial, never a silent allow.
package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/fhe16/confidential-compute-backend/interfaces"
)

// Version identifies the rule set recorded on audit blocks.
const Version = "2026-01"

const (
	// kycStatusVerified is the only KYC status that passes the window check.
	kycStatusVerified = "verified"

	// accreditedIncomeThreshold and accreditedAssetThreshold let a
	// non-accredited investor hold restricted token classes anyway.
	accreditedIncomeThreshold = 100_000_000
	accreditedAssetThreshold  = 500_000_000

	// incomeFloor blocks any request above smallRequestCeiling for
	// investors under it, independent of accreditation.
	incomeFloor         = 20_000_000
	smallRequestCeiling = 10_000_000
)

// restrictedTokenTypes are the token classes requiring accredited
// investor status (or the income/asset escape thresholds).
var restrictedTokenTypes = map[string]bool{
	"security":          true,
	"private_placement": true,
}

// Profile is the decrypted investor record the evaluator rules over.
type Profile struct {
	ID              string    `json:"id"`
	InvestmentLimit float64   `json:"investmentLimit"`
	CurrentHolding  float64   `json:"currentHolding"`
	KYCStatus       string    `json:"kycStatus"`
	KYCExpiry       time.Time `json:"kycExpiry"`
	Accredited      bool      `json:"accredited"`
	AnnualIncome    float64   `json:"annualIncome"`
	NetAssets       float64   `json:"netAssets"`
}

// ProfileFromRecord decodes a decrypted record into a Profile. Missing
// or mistyped fields fail with ErrPolicyInputInvalid; the caller turns
// that into a denial with the error as reason.
func ProfileFromRecord(r interfaces.Record) (Profile, error) {
	var p Profile
	var err error

	if p.ID, err = r.String("id"); err != nil {
		return Profile{}, err
	}
	if p.InvestmentLimit, err = r.Float64("investmentLimit"); err != nil {
		return Profile{}, err
	}
	if p.CurrentHolding, err = r.Float64("currentHolding"); err != nil {
		return Profile{}, err
	}
	if p.KYCStatus, err = r.String("kycStatus"); err != nil {
		return Profile{}, err
	}
	if p.KYCExpiry, err = r.Time("kycExpiry"); err != nil {
		return Profile{}, err
	}
	if p.AnnualIncome, err = r.Float64("annualIncome"); err != nil {
		return Profile{}, err
	}
	if p.NetAssets, err = r.Float64("netAssets"); err != nil {
		return Profile{}, err
	}

	// Accreditation is optional and defaults to false.
	if v, ok := r["accredited"]; ok {
		b, ok := v.(bool)
		if !ok {
			return Profile{}, fmt.Errorf("%w: field %q is not a bool", interfaces.ErrPolicyInputInvalid, "accredited")
		}
		p.Accredited = b
	}

	return p, nil
}

// LimitDecision is the outcome of the investment limit check.
type LimitDecision struct {
	Allowed        bool    `json:"allowed"`
	Reason         string  `json:"reason,omitempty"`
	RemainingLimit float64 `json:"remainingLimit"`
}

// CheckLimit allows a request iff it fits within the investor's
// remaining limit (investmentLimit minus currentHolding).
func CheckLimit(p Profile, requestedAmount float64) LimitDecision {
	remaining := p.InvestmentLimit - p.CurrentHolding
	if requestedAmount <= remaining {
		return LimitDecision{Allowed: true, RemainingLimit: remaining}
	}

	return LimitDecision{
		Allowed:        false,
		Reason:         fmt.Sprintf("requested amount %.0f exceeds remaining investment limit %.0f", requestedAmount, remaining),
		RemainingLimit: remaining,
	}
}

// Decision is a plain allow/deny outcome with a structured reason.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CheckKYC allows iff the KYC status is verified and the expiry lies
// strictly after now.
func CheckKYC(p Profile, now time.Time) Decision {
	if p.KYCStatus != kycStatusVerified {
		return Decision{Reason: fmt.Sprintf("KYC status is %q, not verified", p.KYCStatus)}
	}
	if !p.KYCExpiry.After(now) {
		return Decision{Reason: fmt.Sprintf("KYC expired at %s", p.KYCExpiry.Format(time.RFC3339))}
	}
	return Decision{Allowed: true}
}

// CheckEligibility evaluates the two independent eligibility rules.
// Restricted token classes require accredited status unless income or
// asset thresholds are met; separately, income below the floor blocks
// any request above the small-amount ceiling. Both rules are always
// evaluated and their failure reasons joined with semicolons, so the
// caller sees every violated rule at once.
func CheckEligibility(p Profile, tokenType string, requestedAmount float64) Decision {
	var reasons []string

	if restrictedTokenTypes[tokenType] {
		meetsThresholds := p.AnnualIncome >= accreditedIncomeThreshold || p.NetAssets >= accreditedAssetThreshold
		if !p.Accredited && !meetsThresholds {
			reasons = append(reasons, fmt.Sprintf("token type %q requires accredited investor status", tokenType))
		}
	}

	if p.AnnualIncome < incomeFloor && requestedAmount > smallRequestCeiling {
		reasons = append(reasons, fmt.Sprintf("annual income below %d limits requests to %d", incomeFloor, smallRequestCeiling))
	}

	if len(reasons) > 0 {
		return Decision{Reason: strings.Join(reasons, "; ")}
	}
	return Decision{Allowed: true}
}

// Request is one pre-trade request against a profile.
type Request struct {
	TokenType string    `json:"tokenType"`
	Amount    float64   `json:"amount"`
	Now       time.Time `json:"now"`
}

// EvaluateResult is the combined pre-trade decision.
type EvaluateResult struct {
	Allowed     bool          `json:"allowed"`
	Reason      string        `json:"reason,omitempty"`
	Limit       LimitDecision `json:"limit"`
	KYC         Decision      `json:"kyc"`
	Eligibility Decision      `json:"eligibility"`
}

// Evaluate combines all three checks with logical AND. Reasons from
// every failing sub-check are concatenated with semicolons.
func Evaluate(p Profile, req Request) EvaluateResult {
	result := EvaluateResult{
		Limit:       CheckLimit(p, req.Amount),
		KYC:         CheckKYC(p, req.Now),
		Eligibility: CheckEligibility(p, req.TokenType, req.Amount),
	}

	result.Allowed = result.Limit.Allowed && result.KYC.Allowed && result.Eligibility.Allowed

	var reasons []string
	for _, r := range []string{result.Limit.Reason, result.KYC.Reason, result.Eligibility.Reason} {
		if r != "" {
			reasons = append(reasons, r)
		}
	}
	result.Reason = strings.Join(reasons, "; ")

	return result
}

// Deny builds the denial decision recorded for malformed policy input.
func Deny(err error) Decision {
	return Decision{Allowed: false, Reason: err.Error()}
}
