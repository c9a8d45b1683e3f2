package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhe16/confidential-compute-backend/interfaces"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func validProfile() Profile {
	return Profile{
		ID:              "inv-1",
		InvestmentLimit: 100_000_000,
		CurrentHolding:  30_000_000,
		KYCStatus:       "verified",
		KYCExpiry:       testNow.AddDate(1, 0, 0),
		Accredited:      true,
		AnnualIncome:    50_000_000,
		NetAssets:       200_000_000,
	}
}

func TestCheckLimit(t *testing.T) {
	p := validProfile()

	d := CheckLimit(p, 70_000_000)
	assert.True(t, d.Allowed, "A request equal to the remaining limit is allowed")
	assert.Equal(t, 70_000_000.0, d.RemainingLimit)

	d = CheckLimit(p, 80_000_000)
	assert.False(t, d.Allowed, "80M against a remaining limit of 70M must be denied")
	assert.Equal(t, 70_000_000.0, d.RemainingLimit)
	assert.Contains(t, d.Reason, "exceeds remaining investment limit")
}

func TestCheckKYC(t *testing.T) {
	p := validProfile()

	assert.True(t, CheckKYC(p, testNow).Allowed)

	p.KYCStatus = "pending"
	d := CheckKYC(p, testNow)
	assert.False(t, d.Allowed, "Only verified status passes")
	assert.Contains(t, d.Reason, "pending")

	p = validProfile()
	p.KYCExpiry = testNow
	d = CheckKYC(p, testNow)
	assert.False(t, d.Allowed, "Expiry equal to now is already expired; the window is strict")
	assert.Contains(t, d.Reason, "expired")
}

func TestCheckEligibility_RestrictedToken(t *testing.T) {
	p := validProfile()
	p.Accredited = false
	p.AnnualIncome = 50_000_000
	p.NetAssets = 100_000_000

	d := CheckEligibility(p, "security", 5_000_000)
	assert.False(t, d.Allowed, "Restricted tokens need accreditation or the wealth thresholds")
	assert.Contains(t, d.Reason, "accredited")

	p.NetAssets = 600_000_000
	d = CheckEligibility(p, "security", 5_000_000)
	assert.True(t, d.Allowed, "The asset threshold substitutes for accreditation")

	p.NetAssets = 100_000_000
	p.AnnualIncome = 150_000_000
	d = CheckEligibility(p, "security", 5_000_000)
	assert.True(t, d.Allowed, "The income threshold substitutes for accreditation")

	d = CheckEligibility(validProfile(), "utility", 5_000_000)
	assert.True(t, d.Allowed, "Unrestricted token classes need no accreditation")
}

func TestCheckEligibility_IncomeFloor(t *testing.T) {
	p := validProfile()
	p.AnnualIncome = 15_000_000

	d := CheckEligibility(p, "utility", 12_000_000)
	assert.False(t, d.Allowed, "Low income blocks requests above the small-amount ceiling")
	assert.Contains(t, d.Reason, "annual income")

	d = CheckEligibility(p, "utility", 10_000_000)
	assert.True(t, d.Allowed, "Requests at the ceiling stay allowed")
}

func TestCheckEligibility_IndependentRulesJoined(t *testing.T) {
	p := validProfile()
	p.Accredited = false
	p.AnnualIncome = 15_000_000
	p.NetAssets = 100_000_000

	d := CheckEligibility(p, "private_placement", 12_000_000)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "accredited", "Both violated rules appear")
	assert.Contains(t, d.Reason, "annual income")
	assert.Contains(t, d.Reason, "; ", "Reasons are semicolon joined")
}

func TestEvaluate(t *testing.T) {
	result := Evaluate(validProfile(), Request{TokenType: "security", Amount: 50_000_000, Now: testNow})
	assert.True(t, result.Allowed, "All checks passing allows the request")
	assert.Empty(t, result.Reason)

	p := validProfile()
	p.KYCStatus = "pending"
	result = Evaluate(p, Request{TokenType: "security", Amount: 80_000_000, Now: testNow})
	assert.False(t, result.Allowed, "Any failing check denies")
	assert.Contains(t, result.Reason, "exceeds remaining investment limit")
	assert.Contains(t, result.Reason, "pending")
}

func TestProfileFromRecord(t *testing.T) {
	rec := interfaces.Record{
		"id":              "inv-1",
		"investmentLimit": 100_000_000.0,
		"currentHolding":  30_000_000.0,
		"kycStatus":       "verified",
		"kycExpiry":       testNow.AddDate(1, 0, 0).Format(time.RFC3339),
		"accredited":      true,
		"annualIncome":    50_000_000.0,
		"netAssets":       200_000_000.0,
	}

	p, err := ProfileFromRecord(rec)
	require.NoError(t, err, "A complete record should decode")
	assert.Equal(t, "inv-1", p.ID)
	assert.Equal(t, 100_000_000.0, p.InvestmentLimit)
	assert.True(t, p.Accredited)

	delete(rec, "kycStatus")
	_, err = ProfileFromRecord(rec)
	require.Error(t, err, "Missing fields must fail")
	assert.ErrorIs(t, err, interfaces.ErrPolicyInputInvalid)

	rec["kycStatus"] = 12
	_, err = ProfileFromRecord(rec)
	assert.ErrorIs(t, err, interfaces.ErrPolicyInputInvalid, "Mistyped fields must fail")
}
