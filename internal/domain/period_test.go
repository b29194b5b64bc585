package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRenewalPeriod(t *testing.T) {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		none bool
		want time.Time
	}{
		{name: "none", raw: "none", none: true, want: base},
		{name: "none mixed case", raw: " None ", none: true, want: base},
		{name: "one day", raw: "+1 day", want: base.AddDate(0, 0, 1)},
		{name: "three days", raw: "+3 days", want: base.AddDate(0, 0, 3)},
		{name: "two weeks", raw: "+2 weeks", want: base.AddDate(0, 0, 14)},
		{name: "one month", raw: "+1 month", want: time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)},
		{name: "no plus sign", raw: "3 months", want: time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseRenewalPeriod(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.none, p.IsNone())
			assert.Equal(t, tt.want, p.AddTo(base))
		})
	}
}

func TestParseRenewalPeriod_Rejects(t *testing.T) {
	for _, raw := range []string{"", "+1", "+0 days", "+x days", "+1 year", "+1 fortnight extra"} {
		_, err := ParseRenewalPeriod(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("cancelled")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, s)

	_, err = ParseStatus("lapsed")
	assert.Error(t, err)
}
