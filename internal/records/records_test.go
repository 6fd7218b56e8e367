// internal/records/records_test.go
package records

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadata_IdentityKey(t *testing.T) {
	t.Parallel()

	urlSum := md5.Sum([]byte("https://dealer.example/car/42"))
	urlHash := hex.EncodeToString(urlSum[:])

	t.Run("dealer and car id", func(t *testing.T) {
		t.Parallel()
		m := Metadata{PageURL: "https://dealer.example/car/42", DealerID: "d77", CarID: "c42"}
		assert.Equal(t, "d77-c42", m.IdentityKey())
	})

	t.Run("dealer id only hashes the url", func(t *testing.T) {
		t.Parallel()
		m := Metadata{PageURL: "https://dealer.example/car/42", DealerID: "d77"}
		assert.Equal(t, "d77-"+urlHash, m.IdentityKey())
	})

	t.Run("url only", func(t *testing.T) {
		t.Parallel()
		m := Metadata{PageURL: "https://dealer.example/car/42"}
		assert.Equal(t, urlHash, m.IdentityKey())
	})

	t.Run("car id without dealer falls back to url hash", func(t *testing.T) {
		t.Parallel()
		m := Metadata{PageURL: "https://dealer.example/car/42", CarID: "c42"}
		assert.Equal(t, urlHash, m.IdentityKey())
	})

	t.Run("is stable across calls", func(t *testing.T) {
		t.Parallel()
		m := Metadata{PageURL: "https://dealer.example/car/42", DealerID: "d77"}
		assert.Equal(t, m.IdentityKey(), m.IdentityKey())
	})
}

func TestRecordConstructors(t *testing.T) {
	t.Parallel()

	t.Run("vehicle carries its discriminator", func(t *testing.T) {
		t.Parallel()
		v := NewVehicle()
		assert.Equal(t, "vehicle", v.RecordType())
	})

	t.Run("finance quote derives type from product key", func(t *testing.T) {
		t.Parallel()
		q := NewFinanceQuote("PCP")
		assert.Equal(t, "finance_pcp", q.RecordType())
		assert.Equal(t, "PCP", q.Name)
	})

	t.Run("not found without candidates", func(t *testing.T) {
		t.Parallel()
		nf := NewNotFound(nil, "no calculator seen")
		assert.Equal(t, "not_found", nf.RecordType())
		assert.Empty(t, nf.Candidates)
	})

	t.Run("not found with candidates becomes tentative", func(t *testing.T) {
		t.Parallel()
		nf := NewNotFound([]string{"https://api.codeweavers.net/ping"}, "")
		assert.Equal(t, "candidates", nf.RecordType())
		assert.Len(t, nf.Candidates, 1)
	})
}

func TestIsPlaceholder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data interface{}
		want bool
	}{
		{"nil payload", nil, false},
		{"not found value", NewNotFound(nil, "x"), true},
		{"not found pointer", func() interface{} { nf := NewNotFound(nil, "x"); return &nf }(), true},
		{"candidates value", NewNotFound([]string{"u"}, ""), true},
		{"redirect string", "Redirected !!! main document answered 301", true},
		{"sold string", "vehicle sold", true},
		{"unauthorized string", "401 Unauthorized", true},
		{"ordinary string", "all good here", false},
		{"decoded not_found map", map[string]interface{}{"type": "not_found"}, true},
		{"decoded candidates map", map[string]interface{}{"type": "candidates"}, true},
		{"decoded vehicle map", map[string]interface{}{"type": "vehicle"}, false},
		{"map without type", map[string]interface{}{"model": "Golf"}, false},
		{"real vehicle", NewVehicle(), false},
		{"real quote", NewFinanceQuote("HP"), false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsPlaceholder(tc.data))
		})
	}
}
