package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusInProgress.IsTerminal())
	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusDeclined.IsTerminal())
}

func TestStatusIsValid(t *testing.T) {
	assert.True(t, StatusInProgress.IsValid())
	assert.True(t, StatusApproved.IsValid())
	assert.True(t, StatusDeclined.IsValid())
	assert.False(t, Status("rejected").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestDecidedByString(t *testing.T) {
	tests := []struct {
		name string
		in   DecidedBy
		want string
	}{
		{"auto", AutoDecider(), "auto"},
		{"human", HumanDecider("approver@kaladeofin.com"), "human:approver@kaladeofin.com"},
		{"system error", SystemErrorDecider(), "system_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.String())
		})
	}
}

func TestDecidedByJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(HumanDecider("jane@kaladeofin.com"))
	assert.NoError(t, err)
	assert.Equal(t, `"human:jane@kaladeofin.com"`, string(raw))

	var parsed DecidedBy
	assert.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, HumanDecider("jane@kaladeofin.com"), parsed)
}

func TestParseDecidedBy(t *testing.T) {
	assert.Equal(t, AutoDecider(), ParseDecidedBy("auto"))
	assert.Equal(t, SystemErrorDecider(), ParseDecidedBy("system_error"))
	assert.Equal(t, HumanDecider("jane@kaladeofin.com"), ParseDecidedBy("human:jane@kaladeofin.com"))

	// Unknown values fall back to auto rather than failing the scan.
	assert.Equal(t, AutoDecider(), ParseDecidedBy("something-else"))
}

func TestLineItemReconcile(t *testing.T) {
	tests := []struct {
		name string
		in   LineItem
		want LineItem
	}{
		{
			name: "quantity and unit price derive total",
			in:   LineItem{Description: "laptop stand", Quantity: 3, UnitPrice: 40},
			want: LineItem{Description: "laptop stand", Quantity: 3, UnitPrice: 40, Total: 120},
		},
		{
			name: "total and unit price derive quantity",
			in:   LineItem{Description: "cables", UnitPrice: 10, Total: 50},
			want: LineItem{Description: "cables", Quantity: 5, UnitPrice: 10, Total: 50},
		},
		{
			name: "total and quantity derive unit price",
			in:   LineItem{Description: "licenses", Quantity: 4, Total: 200},
			want: LineItem{Description: "licenses", Quantity: 4, UnitPrice: 50, Total: 200},
		},
		{
			name: "nothing derivable defaults quantity to one and total to zero",
			in:   LineItem{Description: "misc"},
			want: LineItem{Description: "misc", Quantity: 1, UnitPrice: 0, Total: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := tt.in
			item.Reconcile()
			assert.Equal(t, tt.want, item)
		})
	}
}

func TestReconcileLineItems(t *testing.T) {
	items := []LineItem{
		{Description: "desk", Quantity: 1, UnitPrice: 150},
		{Description: "chair", Total: 90, Quantity: 2},
	}
	ReconcileLineItems(items)

	assert.Equal(t, 150.0, items[0].Total)
	assert.Equal(t, 45.0, items[1].UnitPrice)
}
