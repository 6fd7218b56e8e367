// internal/extract/scuk.go
// Description: Parser for the SCUK calculator V1 API. The init exchange
// carries the vehicle (in the request POST body) plus the lender skin and the
// set of eligible finance products; each /quote/{type} response carries one
// priced product. Number fields arrive as strings or numbers depending on the
// dealer skin, so extraction goes through tolerant accessors.

package extract

import (
	"strconv"
	"strings"

	"github.com/quotescope/quotescope/internal/records"
)

// ScukV1 extracts finance data from SCUK calculator traffic.
type ScukV1 struct {
	// Lender is the skin discovered during init, applied to every quote.
	Lender string
}

// InitResult is what the init exchange yields.
type InitResult struct {
	Vehicle          *records.Vehicle
	Lender           string
	EligibleProducts []string
}

// Init combines the captured init request body with the init response data
// object. Either input may be malformed; missing pieces degrade to zero
// values rather than failing the whole exchange.
func (ScukV1) Init(postBody, responseData []byte) InitResult {
	var post map[string]interface{}
	_ = json.Unmarshal(postBody, &post)

	var data struct {
		Skin     string `json:"skin"`
		Products map[string]struct {
			Eligible bool `json:"eligible"`
		} `json:"products"`
	}
	_ = json.Unmarshal(responseData, &data)

	v := records.NewVehicle()
	v.Manufacturer = str(post, "vehicle_make")
	v.Model = str(post, "vehicle_model")
	v.Derivative = str(post, "vehicle_derivative")
	v.RegistrationNumber = str(post, "vrm")
	v.RegistrationDate = str(post, "date_first_registered")
	v.Mileage = num(post, "mileage")
	v.Status = str(post, "category")
	v.URL = str(post, "url")

	lender := data.Skin
	if lender == "" {
		lender = "unknown"
	}

	var eligible []string
	for key, p := range data.Products {
		if p.Eligible {
			eligible = append(eligible, strings.ToLower(key))
		}
	}

	return InitResult{Vehicle: &v, Lender: lender, EligibleProducts: eligible}
}

// Process maps one /quote/{type} response body to a FinanceQuote. Returns nil
// when the body carries no quote object.
func (s ScukV1) Process(body []byte) *records.FinanceQuote {
	var resp struct {
		Data struct {
			Quote map[string]interface{} `json:"quote"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	quote := resp.Data.Quote
	if len(quote) == 0 {
		return nil
	}

	productType := strings.ToLower(str(quote, "producttype"))
	if productType == "" {
		productType = "unknown"
	}

	deposit := num(quote, "cashdeposit")
	cashPrice := num(quote, "ontheroadcashprice")
	finalPayment := num(quote, "final_payment")
	regular := num(quote, "regular_monthly_payment")
	if finalPayment == 0 {
		finalPayment = regular
	}
	term := num(quote, "period")
	if term == 0 {
		term = num(quote, "duration_of_agreement")
	}

	lender := s.Lender
	if lender == "" {
		lender = "unknown"
	}

	q := records.NewFinanceQuote(strings.ToUpper(productType))
	q.FinanceType = strings.ToUpper(productType)
	q.CashPrice = cashPrice
	q.TotalPrice = num(quote, "costprice")
	q.Deposit = deposit
	q.APR = num(quote, "apr")
	q.RateOfInterest = num(quote, "paf")
	q.Term = int(term)
	q.RegularPayment = regular
	q.FinalPayment = finalPayment
	q.TotalAmountPayable = num(quote, "totalamount")
	q.TotalChargeForCredit = num(quote, "interest")
	q.AmountOfCredit = cashPrice - deposit
	q.Lender = lender
	q.AnnualMileage = num(quote, "annualmileage")
	q.ContractMileage = num(quote, "annualmileage")
	q.ExcessMileageRate = num(quote, "excess_mileage_charge")
	q.Residual = finalPayment
	q.PriceToBuy = finalPayment
	return &q
}

// IsClient reports whether a page body embeds the SCUK calculator.
func (ScukV1) IsClient(content string) bool {
	return strings.Contains(content, "ScukCalculator")
}

// str pulls a string field out of a loosely typed JSON object.
func str(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// num pulls a numeric field that may be encoded as a number or a string.
func num(m map[string]interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
