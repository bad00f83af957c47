package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePMSExport(t *testing.T) {
	records, err := parsePMSExport([]byte(testCSV))
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "Dr. Nguyen", records[0].ReferralSource)
	assert.Equal(t, 14, records[0].PatientCount)
	assert.InDelta(t, 18250.00, records[0].Production, 0.001)
	assert.Equal(t, "2025-07", records[0].Month)

	assert.Equal(t, "Smile Direct Ads", records[1].ReferralSource)
	assert.InDelta(t, 6400.50, records[1].Production, 0.001)
}

func TestParsePMSExportHeaderNormalization(t *testing.T) {
	raw := "REFERRAL SOURCE,Patient Count\nWord of Mouth,7\n"
	records, err := parsePMSExport([]byte(raw))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Word of Mouth", records[0].ReferralSource)
	assert.Equal(t, 7, records[0].PatientCount)
}

func TestParsePMSExportOptionalColumnsMayBeEmpty(t *testing.T) {
	raw := "Referral Source,Patient Count,Production\nYelp,,\n"
	records, err := parsePMSExport([]byte(raw))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].PatientCount)
	assert.Zero(t, records[0].Production)
}

func TestParsePMSExportErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"empty input", "", "header row"},
		{"missing referral source column", "Month,Production\n2025-07,100\n", "referral_source"},
		{"no data rows", "Referral Source,Month\n", "no data rows"},
		{"blank referral source", "Referral Source\n   \n", "empty referral_source"},
		{"bad patient count", "Referral Source,Patient Count\nYelp,twelve\n", "invalid patient_count"},
		{"bad production", "Referral Source,Production\nYelp,12k\n", "invalid production"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parsePMSExport([]byte(tc.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
