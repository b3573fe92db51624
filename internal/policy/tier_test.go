package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name   string
		amount *float64
		want   Tier
	}{
		{"unknown amount", nil, TierManager},
		{"small amount", floatPtr(100), TierManager},
		{"at finance boundary", floatPtr(2500), TierManager},
		{"above finance boundary", floatPtr(2500.01), TierFinanceManager},
		{"at executive boundary", floatPtr(10000), TierFinanceManager},
		{"above executive boundary", floatPtr(10001), TierExecutive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.TierFor(tt.amount))
		})
	}
}

func TestApproverNames(t *testing.T) {
	approvers := DefaultApprovers()
	assert.Equal(t, "Robert Schrill", approvers.NameFor(TierManager))
	assert.Equal(t, "Sven Stevenon", approvers.NameFor(TierFinanceManager))
	assert.Equal(t, "Georly Daniel", approvers.NameFor(TierExecutive))
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{42.5, "$42.50"},
		{250, "$250.00"},
		{1234.56, "$1,234.56"},
		{5000, "$5,000.00"},
		{1234567.89, "$1,234,567.89"},
		{-950, "-$950.00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAmount(tt.in))
	}
}
