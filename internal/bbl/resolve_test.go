package bbl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		block  string
		lot    string
		permit string
		want   string
	}{
		{"brooklyn padded", "5008", "64", "321234567", "3050080064"},
		{"minimal block and lot", "1", "2", "321234567", "3000010002"},
		{"queens", "100", "1", "421234567", "4001000001"},
		{"manhattan full width", "12345", "6789", "121234567", "1123456789"},
		{"staten island", "70", "7", "540012345", "5000700007"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(tt.block, tt.lot, tt.permit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 10)
			assert.Equal(t, tt.permit[0], got[0])
		})
	}
}

func TestResolve_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		block  string
		lot    string
		permit string
		reason string
	}{
		{"non-numeric block", "ABC", "64", "321234567", "invalid block"},
		{"over-length block", "123456", "64", "321234567", "invalid block"},
		{"empty block", "", "64", "321234567", "invalid block"},
		{"non-numeric lot", "5008", "6A", "321234567", "invalid lot"},
		{"over-length lot", "5008", "12345", "321234567", "invalid lot"},
		{"borough digit zero", "5008", "64", "021234567", "unknown borough code"},
		{"borough digit six", "5008", "64", "621234567", "unknown borough code"},
		{"alpha permit prefix", "5008", "64", "X21234567", "unknown borough code"},
		{"empty permit number", "5008", "64", "", "unknown borough code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(tt.block, tt.lot, tt.permit)
			require.Error(t, err)
			assert.Empty(t, got)

			var iie *InvalidInputError
			require.ErrorAs(t, err, &iie)
			assert.Equal(t, tt.reason, iie.Reason)
		})
	}
}

func TestResolveWithBorough(t *testing.T) {
	t.Parallel()

	t.Run("matching borough", func(t *testing.T) {
		t.Parallel()
		id, warning, err := ResolveWithBorough("5008", "64", "321234567", "Brooklyn")
		require.NoError(t, err)
		assert.Equal(t, "3050080064", id)
		assert.Empty(t, warning)
	})

	t.Run("mismatched borough still resolves with warning", func(t *testing.T) {
		t.Parallel()
		id, warning, err := ResolveWithBorough("5008", "64", "321234567", "Queens")
		require.NoError(t, err)
		assert.Equal(t, "3050080064", id)
		assert.Contains(t, warning, "borough mismatch")
		assert.Contains(t, warning, "brooklyn")
		assert.Contains(t, warning, "queens")
	})

	t.Run("no reported borough", func(t *testing.T) {
		t.Parallel()
		id, warning, err := ResolveWithBorough("1", "2", "421234567", "")
		require.NoError(t, err)
		assert.Equal(t, "4000010002", id)
		assert.Empty(t, warning)
	})
}
