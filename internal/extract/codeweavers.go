// internal/extract/codeweavers.go
// Description: Parser for Codeweavers V3 JsonFinance/Calculate responses.
// Pure field mapping: raw body in, records out, nil when the shape does not
// match. Never panics on malformed input.

package extract

import (
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/quotescope/quotescope/internal/records"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CodeweaversV3 extracts vehicle and finance data from the Codeweavers
// calculator API.
type CodeweaversV3 struct{}

type cwResponse struct {
	VehicleResults []struct {
		FinanceProductResults []cwProductResult `json:"FinanceProductResults"`
	} `json:"VehicleResults"`
}

type cwProductResult struct {
	Key     string `json:"Key"`
	Product *struct {
		Type   string `json:"Type"`
		Lender string `json:"Lender"`
	} `json:"Product"`
	Vehicle *struct {
		Manufacturer       string  `json:"Manufacturer"`
		Model              string  `json:"Model"`
		Variant            string  `json:"Variant"`
		Derivative         string  `json:"Derivative"`
		RegistrationNumber string  `json:"RegistrationNumber"`
		RegistrationDate   string  `json:"RegistrationDate"`
		CurrentMileage     float64 `json:"CurrentMileage"`
		VehicleStatus      string  `json:"VehicleStatus"`
	} `json:"Vehicle"`
	Quote *struct {
		CashPrice            float64 `json:"CashPrice"`
		TotalPrice           float64 `json:"TotalPrice"`
		TotalDeposit         float64 `json:"TotalDeposit"`
		Balance              float64 `json:"Balance"`
		Apr                  float64 `json:"Apr"`
		RateOfInterest       float64 `json:"RateOfInterest"`
		Term                 int     `json:"Term"`
		RegularPayment       float64 `json:"RegularPayment"`
		FinalPayment         float64 `json:"FinalPayment"`
		TotalAmountPayable   float64 `json:"TotalAmountPayable"`
		TotalChargeForCredit float64 `json:"TotalChargeForCredit"`
		AmountOfCredit       float64 `json:"AmountOfCredit"`
		AnnualMileage        float64 `json:"AnnualMileage"`
		ContractMileage      float64 `json:"ContractMileage"`
		ExcessMileageRate    float64 `json:"ExcessMileageRate"`
		Residual             float64 `json:"Residual"`
	} `json:"Quote"`
}

// Process maps a calculate response to one Vehicle record followed by one
// FinanceQuote per product. Returns nil when the body is not a recognisable
// Codeweavers payload or contains no priced products.
func (CodeweaversV3) Process(body []byte) []records.Record {
	var resp cwResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	if len(resp.VehicleResults) == 0 {
		return nil
	}

	var out []records.Record
	for _, vr := range resp.VehicleResults {
		vehicleAdded := false
		for _, pr := range vr.FinanceProductResults {
			if pr.Quote == nil || pr.Product == nil || pr.Vehicle == nil {
				continue
			}

			if !vehicleAdded {
				v := records.NewVehicle()
				v.Manufacturer = pr.Vehicle.Manufacturer
				v.Model = pr.Vehicle.Model
				v.Variant = pr.Vehicle.Variant
				v.Derivative = pr.Vehicle.Derivative
				v.RegistrationNumber = pr.Vehicle.RegistrationNumber
				v.RegistrationDate = pr.Vehicle.RegistrationDate
				v.Mileage = pr.Vehicle.CurrentMileage
				v.Status = pr.Vehicle.VehicleStatus
				out = append(out, v)
				vehicleAdded = true
			}

			q := records.NewFinanceQuote(pr.Key)
			q.FinanceType = pr.Product.Type
			q.CashPrice = pr.Quote.CashPrice
			q.TotalPrice = pr.Quote.TotalPrice
			q.Deposit = pr.Quote.TotalDeposit
			q.Balance = pr.Quote.Balance
			q.APR = pr.Quote.Apr
			q.RateOfInterest = pr.Quote.RateOfInterest
			q.Term = pr.Quote.Term
			q.RegularPayment = pr.Quote.RegularPayment
			q.FinalPayment = pr.Quote.FinalPayment
			q.TotalAmountPayable = pr.Quote.TotalAmountPayable
			q.TotalChargeForCredit = pr.Quote.TotalChargeForCredit
			q.AmountOfCredit = pr.Quote.AmountOfCredit
			q.Lender = pr.Product.Lender

			switch {
			case strings.EqualFold(pr.Product.Type, "PCP"):
				q.AnnualMileage = pr.Quote.AnnualMileage
				q.ContractMileage = pr.Quote.ContractMileage
				q.ExcessMileageRate = pr.Quote.ExcessMileageRate
				q.Residual = pr.Quote.Residual
				q.PriceToBuy = pr.Quote.FinalPayment
			case strings.EqualFold(pr.Product.Type, "Hire Purchase"):
				q.AnnualMileage = pr.Quote.AnnualMileage
				q.ExcessMileageRate = 0
				q.Residual = 0
			}

			out = append(out, q)
		}
	}

	return out
}

// IsClient reports whether a page body embeds the Codeweavers widget.
func (CodeweaversV3) IsClient(content string) bool {
	return strings.Contains(content, "codeweavers") ||
		strings.Contains(content, "loadCodeWeaversPlugin")
}
