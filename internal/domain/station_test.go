package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func target(kind Kind, freq float64, sub int) *StationTarget {
	return &StationTarget{Kind: kind, Frequency: freq, Subchannel: sub}
}

func TestEqual(t *testing.T) {
	testCases := []struct {
		name   string
		a, b   *StationTarget
		strict bool
		loose  bool
	}{
		{"Both nil", nil, nil, true, true},
		{"One nil", target(KindFM, 101.1, 0), nil, false, false},
		{"Identical", target(KindFM, 101.1, 0), target(KindFM, 101.1, 0), true, true},
		{"Different kind", target(KindFM, 101.1, 0), target(KindHDRadio, 101.1, 0), false, false},
		{"Different frequency", target(KindFM, 101.1, 0), target(KindFM, 101.3, 0), false, false},
		{"No frequency tolerance", target(KindAM, 740, 0), target(KindAM, 740.0001, 0), false, false},
		{"Unset subchannel", target(KindHDRadio, 88.5, 0), target(KindHDRadio, 88.5, 2), false, true},
		{"Same subchannel", target(KindHDRadio, 88.5, 2), target(KindHDRadio, 88.5, 2), true, true},
		{"Different subchannel", target(KindHDRadio, 88.5, 1), target(KindHDRadio, 88.5, 2), false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.strict, Equal(tc.a, tc.b, true), "strict")
			require.Equal(t, tc.loose, Equal(tc.a, tc.b, false), "loose")
			require.Equal(t, Equal(tc.a, tc.b, true), Equal(tc.b, tc.a, true), "strict must be symmetric")
			require.Equal(t, Equal(tc.a, tc.b, false), Equal(tc.b, tc.a, false), "loose must be symmetric")
		})
	}
}

func TestEqual_Reflexive(t *testing.T) {
	targets := []*StationTarget{
		target(KindHDRadio, 88.5, 0),
		target(KindHDRadio, 88.5, 4),
		target(KindFM, 101.1, 0),
		target(KindAM, 1550, 0),
		ptr(ADSBTarget()),
	}
	for _, tt := range targets {
		require.NoError(t, tt.Validate())
		require.True(t, Equal(tt, tt, true), tt.String())
		require.True(t, Equal(tt, tt, false), tt.String())
	}
}

func ptr[T any](v T) *T { return &v }

func TestStationTarget_Validate(t *testing.T) {
	testCases := []struct {
		name      string
		target    StationTarget
		expectErr bool
	}{
		{"FM", *target(KindFM, 98.1, 0), false},
		{"HD subchannel 4", *target(KindHDRadio, 98.1, 4), false},
		{"Zero frequency", *target(KindFM, 0, 0), true},
		{"Negative frequency", *target(KindAM, -10, 0), true},
		{"HD subchannel 5", *target(KindHDRadio, 98.1, 5), true},
		{"HD negative subchannel", *target(KindHDRadio, 98.1, -1), true},
		{"AM subchannel", *target(KindAM, 740, 1), true},
		{"Unknown kind", *target(Kind(42), 98.1, 0), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.target.Validate()
			if tc.expectErr {
				require.ErrorIs(t, err, ErrInvalidTarget)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestKind_Text(t *testing.T) {
	for _, k := range Kinds {
		text, err := k.MarshalText()
		require.NoError(t, err)

		var parsed Kind
		require.NoError(t, parsed.UnmarshalText(text))
		require.Equal(t, k, parsed)
	}

	k, err := ParseKind(" ADS-B ")
	require.NoError(t, err)
	require.Equal(t, KindADSB, k)

	_, err = ParseKind("dab")
	require.Error(t, err)
}

func TestStationTarget_String(t *testing.T) {
	require.Equal(t, "HD Radio 88.5 MHz HD2", target(KindHDRadio, 88.5, 2).String())
	require.Equal(t, "AM Radio 740 kHz", target(KindAM, 740, 0).String())
}
