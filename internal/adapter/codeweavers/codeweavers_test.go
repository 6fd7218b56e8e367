// internal/adapter/codeweavers/codeweavers_test.go
package codeweavers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/adapter"
	"github.com/quotescope/quotescope/internal/bus"
	"github.com/quotescope/quotescope/internal/records"
)

const calculateBody = `{
  "VehicleResults": [{
    "FinanceProductResults": [{
      "Key": "PCP",
      "Product": {"Type": "PCP", "Lender": "Alphera"},
      "Vehicle": {"Manufacturer": "Audi", "Model": "A3", "CurrentMileage": 21000},
      "Quote": {"CashPrice": 18995, "TotalDeposit": 2000, "Apr": 8.9, "Term": 48,
                "RegularPayment": 289.0, "FinalPayment": 7200}
    }]
  }]
}`

type fixture struct {
	events *bus.Bus
	calc   *Calculator

	mu    sync.Mutex
	saves []bus.Event
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{events: bus.New(zap.NewNop())}
	f.events.On(bus.TopicSave, func(ev bus.Event) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.saves = append(f.saves, ev)
	})

	a := New(adapter.Deps{Logger: zap.NewNop(), Events: f.events})
	f.calc = a.(*Calculator)
	f.calc.SetMetadata(records.Metadata{
		PageURL:  "https://dealer.example/audi-a3",
		DealerID: "d9",
	})
	return f
}

func (f *fixture) savedEvents() []bus.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bus.Event, len(f.saves))
	copy(out, f.saves)
	return out
}

func calculateResponse(body string) adapter.Response {
	return adapter.Response{
		URL:      "https://services.codeweavers.net/public/v3/JsonFinance/Calculate",
		Method:   "POST",
		Status:   200,
		MimeType: "application/json",
		Body:     []byte(body),
	}
}

func TestCalculator_ExtractsAndCompletesEagerly(t *testing.T) {
	t.Parallel()
	f := setup(t)

	completed := false
	f.calc.OnComplete(func() { completed = true })

	f.calc.ProcessResponse(calculateResponse(calculateBody))

	require.True(t, completed, "first successful extraction completes the adapter")
	saves := f.savedEvents()
	require.Len(t, saves, 1)

	payload, ok := saves[0].Payload.([]records.Record)
	require.True(t, ok)
	require.Len(t, payload, 2, "vehicle plus one finance product")
	assert.Equal(t, "vehicle", payload[0].RecordType())
	assert.Equal(t, "finance_pcp", payload[1].RecordType())
}

func TestCalculator_SecondCalculateIsIgnored(t *testing.T) {
	t.Parallel()
	f := setup(t)

	f.calc.ProcessResponse(calculateResponse(calculateBody))
	f.calc.ProcessResponse(calculateResponse(calculateBody))

	assert.Len(t, f.savedEvents(), 1, "a second calculate after completion must not save again")
}

func TestCalculator_RequiresJSONMime(t *testing.T) {
	t.Parallel()
	f := setup(t)

	resp := calculateResponse(calculateBody)
	resp.MimeType = "text/html"
	f.calc.ProcessResponse(resp)

	assert.Empty(t, f.savedEvents())
	assert.False(t, f.calc.ResultFound())
}

func TestCalculator_LegacyEndpointWithoutVersionSegment(t *testing.T) {
	t.Parallel()
	f := setup(t)

	resp := calculateResponse(calculateBody)
	resp.URL = "https://services.codeweavers.net/public/JsonFinance/Calculate"
	f.calc.ProcessResponse(resp)

	assert.True(t, f.calc.ResultFound())
}

func TestCalculator_GetRequestsAreNotFinance(t *testing.T) {
	t.Parallel()
	f := setup(t)

	resp := calculateResponse(calculateBody)
	resp.Method = "GET"
	f.calc.ProcessResponse(resp)

	assert.False(t, f.calc.ResultFound())
	// The GET still matches the loose candidate classification.
	assert.NotEmpty(t, f.calc.Candidates())
}

func TestCalculator_CandidateTracking(t *testing.T) {
	t.Parallel()
	f := setup(t)

	infos := 0
	f.events.On(bus.TopicInfo, func(bus.Event) { infos++ })

	resp := adapter.Response{URL: "https://api.codeweavers.net/ping", Method: "GET", Status: 200}
	f.calc.ProcessResponse(resp)
	f.calc.ProcessResponse(resp)

	assert.Equal(t, []string{"https://api.codeweavers.net/ping"}, f.calc.Candidates())
	assert.Equal(t, 1, infos, "duplicate candidates are reported once")
}

func TestCalculator_MainDocumentRedirect(t *testing.T) {
	t.Parallel()
	f := setup(t)

	f.calc.ProcessResponse(adapter.Response{
		URL:          "https://dealer.example/audi-a3",
		Method:       "GET",
		Status:       302,
		MainDocument: true,
	})

	saves := f.savedEvents()
	require.Len(t, saves, 1)
	msg, ok := saves[0].Payload.(string)
	require.True(t, ok)
	assert.Contains(t, msg, "302")
}

func TestCalculator_MalformedCalculateKeepsWaiting(t *testing.T) {
	t.Parallel()
	f := setup(t)

	f.calc.ProcessResponse(calculateResponse(`{"VehicleResults": []}`))

	assert.False(t, f.calc.ResultFound(), "an empty payload is not a terminal decision")
	assert.Empty(t, f.savedEvents())
}
