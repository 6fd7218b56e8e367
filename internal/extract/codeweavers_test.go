// internal/extract/codeweavers_test.go
package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotescope/quotescope/internal/records"
)

const codeweaversCalculateBody = `{
  "VehicleResults": [
    {
      "FinanceProductResults": [
        {
          "Key": "PCP",
          "Product": {"Type": "PCP", "Lender": "Alphera"},
          "Vehicle": {
            "Manufacturer": "Volkswagen",
            "Model": "Golf",
            "Derivative": "GT TDI",
            "RegistrationNumber": "AB12CDE",
            "RegistrationDate": "2019-03-01",
            "CurrentMileage": 32500,
            "VehicleStatus": "Used"
          },
          "Quote": {
            "CashPrice": 15995,
            "TotalDeposit": 1500,
            "Balance": 14495,
            "Apr": 9.9,
            "RateOfInterest": 5.14,
            "Term": 48,
            "RegularPayment": 249.5,
            "FinalPayment": 5882,
            "TotalAmountPayable": 19358,
            "TotalChargeForCredit": 3363,
            "AmountOfCredit": 14495,
            "AnnualMileage": 10000,
            "ContractMileage": 40000,
            "ExcessMileageRate": 0.06,
            "Residual": 5882
          }
        },
        {
          "Key": "HP",
          "Product": {"Type": "Hire Purchase", "Lender": "Alphera"},
          "Vehicle": {"Manufacturer": "Volkswagen", "Model": "Golf"},
          "Quote": {
            "CashPrice": 15995,
            "TotalDeposit": 1500,
            "Apr": 10.9,
            "Term": 48,
            "RegularPayment": 372.1,
            "AnnualMileage": 10000,
            "ExcessMileageRate": 0.06,
            "Residual": 1234
          }
        }
      ]
    }
  ]
}`

func TestCodeweaversV3_Process(t *testing.T) {
	t.Parallel()
	parser := CodeweaversV3{}

	out := parser.Process([]byte(codeweaversCalculateBody))
	require.Len(t, out, 3, "one vehicle plus two finance products")

	vehicle, ok := out[0].(records.Vehicle)
	require.True(t, ok, "first record should be the vehicle")
	assert.Equal(t, "vehicle", vehicle.RecordType())
	assert.Equal(t, "Volkswagen", vehicle.Manufacturer)
	assert.Equal(t, "Golf", vehicle.Model)
	assert.Equal(t, "AB12CDE", vehicle.RegistrationNumber)
	assert.Equal(t, float64(32500), vehicle.Mileage)

	pcp, ok := out[1].(records.FinanceQuote)
	require.True(t, ok)
	assert.Equal(t, "finance_pcp", pcp.RecordType())
	assert.Equal(t, "PCP", pcp.FinanceType)
	assert.Equal(t, "Alphera", pcp.Lender)
	assert.Equal(t, 9.9, pcp.APR)
	assert.Equal(t, 48, pcp.Term)
	assert.Equal(t, float64(40000), pcp.ContractMileage)
	assert.Equal(t, float64(5882), pcp.Residual)
	assert.Equal(t, float64(5882), pcp.PriceToBuy, "PCP price to buy is the final payment")

	hp, ok := out[2].(records.FinanceQuote)
	require.True(t, ok)
	assert.Equal(t, "finance_hp", hp.RecordType())
	assert.Equal(t, "Hire Purchase", hp.FinanceType)
	assert.Zero(t, hp.Residual, "hire purchase has no residual value")
	assert.Zero(t, hp.ExcessMileageRate)
}

func TestCodeweaversV3_ProcessRejectsForeignPayloads(t *testing.T) {
	t.Parallel()
	parser := CodeweaversV3{}

	assert.Nil(t, parser.Process([]byte(`not json at all`)))
	assert.Nil(t, parser.Process([]byte(`{"SomethingElse": true}`)))
	assert.Nil(t, parser.Process([]byte(`{"VehicleResults": []}`)))

	// Products without a quote are skipped, not extracted half-empty.
	assert.Nil(t, parser.Process([]byte(`{
      "VehicleResults": [{"FinanceProductResults": [{"Key": "PCP", "Product": {"Type": "PCP"}}]}]
    }`)))
}

func TestCodeweaversV3_IsClient(t *testing.T) {
	t.Parallel()
	parser := CodeweaversV3{}

	assert.True(t, parser.IsClient(`<script src="https://plugins.codeweavers.net/finance.js">`))
	assert.True(t, parser.IsClient(`window.loadCodeWeaversPlugin();`))
	assert.False(t, parser.IsClient(`<html><body>plain page</body></html>`))
}
