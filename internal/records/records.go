// internal/records/records.go
// Description: The data model shared by adapters and sinks. Records are the
// structured output of a scrape; Metadata ties them back to the dealer listing
// they came from.

package records

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Record is the tagged union produced by site adapters. Concrete types are
// Vehicle, FinanceQuote and NotFound; the JSON "type" discriminator matches
// what downstream import tooling expects.
type Record interface {
	RecordType() string
}

// Vehicle describes the car the finance widget was quoting for. Fields the
// upstream calculator did not supply keep their zero value; adapters that
// receive an explicit "unknown" sentinel preserve it as-is.
type Vehicle struct {
	Type               string  `json:"type"`
	Manufacturer       string  `json:"manufacturer"`
	Model              string  `json:"model"`
	Variant            string  `json:"variant,omitempty"`
	Derivative         string  `json:"derivative,omitempty"`
	RegistrationNumber string  `json:"registration_number,omitempty"`
	RegistrationDate   string  `json:"registration_date,omitempty"`
	Mileage            float64 `json:"mileage"`
	Status             string  `json:"status,omitempty"`
	URL                string  `json:"url,omitempty"`
}

// NewVehicle stamps the discriminator so callers cannot forget it.
func NewVehicle() Vehicle {
	return Vehicle{Type: "vehicle"}
}

func (v Vehicle) RecordType() string { return v.Type }

// FinanceQuote is one priced finance product (HP, PCP, LP, CS...).
// Monetary and percentage fields are decimal values as reported upstream.
type FinanceQuote struct {
	Type                 string  `json:"type"`
	Name                 string  `json:"name"`
	FinanceType          string  `json:"finance_type"`
	CashPrice            float64 `json:"cash_price"`
	TotalPrice           float64 `json:"total_price"`
	Deposit              float64 `json:"deposit"`
	Balance              float64 `json:"balance"`
	APR                  float64 `json:"apr"`
	RateOfInterest       float64 `json:"rate_of_interest"`
	Term                 int     `json:"term"`
	RegularPayment       float64 `json:"regular_payment"`
	FinalPayment         float64 `json:"final_payment"`
	TotalAmountPayable   float64 `json:"total_amount_payable"`
	TotalChargeForCredit float64 `json:"total_charge_for_credit"`
	AmountOfCredit       float64 `json:"amount_of_credit"`
	Lender               string  `json:"lender"`
	AnnualMileage        float64 `json:"annual_mileage,omitempty"`
	ContractMileage      float64 `json:"contract_mileage,omitempty"`
	ExcessMileageRate    float64 `json:"excess_mileage_rate,omitempty"`
	Residual             float64 `json:"residual,omitempty"`
	PriceToBuy           float64 `json:"price_to_buy,omitempty"`
}

// NewFinanceQuote builds a quote for the given product key ("PCP", "HP"...),
// deriving the discriminator the same way the legacy pipeline did
// ("finance_pcp", "finance_hp").
func NewFinanceQuote(productKey string) FinanceQuote {
	return FinanceQuote{
		Type: "finance_" + strings.ToLower(productKey),
		Name: productKey,
	}
}

func (q FinanceQuote) RecordType() string { return q.Type }

// NotFound is the placeholder saved when a run ends without usable finance
// data. It distinguishes "looked, found nothing" from "never checked", and
// carries any near-miss candidate URLs seen during the session so a human can
// decide whether a new adapter is needed.
type NotFound struct {
	Type       string   `json:"type"`
	Candidates []string `json:"urls,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// NewNotFound builds the placeholder. With candidates it is typed
// "candidates"; without, plain "not_found".
func NewNotFound(candidates []string, reason string) NotFound {
	nf := NotFound{Type: "not_found", Reason: reason}
	if len(candidates) > 0 {
		nf.Type = "candidates"
		nf.Candidates = candidates
	}
	return nf
}

func (n NotFound) RecordType() string { return n.Type }

// Metadata is the envelope attached to every saved result.
type Metadata struct {
	PageURL  string `json:"url"`
	DealerID string `json:"dealer_id,omitempty"`
	CarID    string `json:"car_id,omitempty"`
}

// IdentityKey computes the stable key sinks group and supersede results by:
// "dealerId-carId" when both identifiers are present, "dealerId-md5(url)" with
// only a dealer, and md5(url) as the last resort.
func (m Metadata) IdentityKey() string {
	switch {
	case m.DealerID != "" && m.CarID != "":
		return fmt.Sprintf("%s-%s", m.DealerID, m.CarID)
	case m.DealerID != "":
		return fmt.Sprintf("%s-%s", m.DealerID, urlHash(m.PageURL))
	default:
		return urlHash(m.PageURL)
	}
}

func urlHash(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Entry is the persisted shape: one timestamped result with its provenance.
// Bulk-import tooling depends on this exact layout.
type Entry struct {
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	URL       string      `json:"url"`
	DealerID  string      `json:"dealer_id,omitempty"`
	CarID     string      `json:"car_id,omitempty"`
	Data      interface{} `json:"data"`
}

// IsPlaceholder reports whether a payload represents a miss (not found,
// redirect, sold or unauthorized) rather than real finance data. The check is
// content based, not a type assertion, because payload shapes vary between
// adapters and between file generations.
func IsPlaceholder(data interface{}) bool {
	switch v := data.(type) {
	case nil:
		return false
	case NotFound:
		return true
	case *NotFound:
		return true
	case string:
		s := strings.ToLower(v)
		return strings.Contains(s, "redirect") ||
			strings.Contains(s, "sold") ||
			strings.Contains(s, "unauthorized")
	case map[string]interface{}:
		if t, ok := v["type"].(string); ok {
			return t == "not_found" || t == "candidates"
		}
		return false
	default:
		return false
	}
}
