package domain

import (
	"fmt"
	"strings"
)

// Kind is a consumer of the shared radio device.
type Kind int

const (
	KindHDRadio Kind = iota
	KindFM
	KindAM
	KindADSB
)

var Kinds = []Kind{KindHDRadio, KindFM, KindAM, KindADSB}

// ADSBFrequencyMHz is the fixed Mode S downlink frequency.
const ADSBFrequencyMHz = 1090.0

func (k Kind) String() string {
	switch k {
	case KindHDRadio:
		return "hd"
	case KindFM:
		return "fm"
	case KindAM:
		return "am"
	case KindADSB:
		return "adsb"
	default:
		return "unknown"
	}
}

func (k Kind) Label() string {
	switch k {
	case KindHDRadio:
		return "HD Radio"
	case KindFM:
		return "FM Radio"
	case KindAM:
		return "AM Radio"
	case KindADSB:
		return "ADS-B"
	default:
		return "Unknown"
	}
}

func (k Kind) Valid() bool {
	return k >= KindHDRadio && k <= KindADSB
}

// MaxSubchannel is 0 for kinds that have no subchannels.
func (k Kind) MaxSubchannel() int {
	if k == KindHDRadio {
		return 4
	}
	return 0
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hd", "hdradio", "hd-radio":
		return KindHDRadio, nil
	case "fm", "fm-radio":
		return KindFM, nil
	case "am", "am-radio":
		return KindAM, nil
	case "adsb", "ads-b":
		return KindADSB, nil
	}
	return 0, fmt.Errorf("unknown stream kind %q", s)
}

// StationTarget is something the receiver can be tuned to. Frequency is in
// MHz for HD Radio, FM and ADS-B and in kHz for AM. A zero Subchannel means
// none was specified.
type StationTarget struct {
	Kind       Kind    `json:"kind" yaml:"kind"`
	Frequency  float64 `json:"frequency" yaml:"frequency"`
	Subchannel int     `json:"subchannel,omitempty" yaml:"subchannel,omitempty"`
}

func (t StationTarget) HasSubchannel() bool { return t.Subchannel != 0 }

func (t StationTarget) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidTarget, int(t.Kind))
	}
	if t.Frequency <= 0 {
		return fmt.Errorf("%w: frequency must be positive, got %v", ErrInvalidTarget, t.Frequency)
	}
	if t.Subchannel == 0 {
		return nil
	}
	max := t.Kind.MaxSubchannel()
	if max == 0 {
		return fmt.Errorf("%w: %s does not take a subchannel", ErrInvalidTarget, t.Kind.Label())
	}
	if t.Subchannel < 1 || t.Subchannel > max {
		return fmt.Errorf("%w: subchannel %d out of range 1-%d", ErrInvalidTarget, t.Subchannel, max)
	}
	return nil
}

func (t StationTarget) String() string {
	unit := "MHz"
	if t.Kind == KindAM {
		unit = "kHz"
	}
	if t.HasSubchannel() {
		return fmt.Sprintf("%s %g %s HD%d", t.Kind.Label(), t.Frequency, unit, t.Subchannel)
	}
	return fmt.Sprintf("%s %g %s", t.Kind.Label(), t.Frequency, unit)
}

// Equal compares two targets. Kind and frequency must match exactly. In
// strict mode the subchannels must be identical; otherwise a side without a
// subchannel matches any subchannel on the other side.
func Equal(a, b *StationTarget, strict bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind != b.Kind || a.Frequency != b.Frequency {
		return false
	}
	if strict {
		return a.Subchannel == b.Subchannel
	}
	if !a.HasSubchannel() || !b.HasSubchannel() {
		return true
	}
	return a.Subchannel == b.Subchannel
}

func ADSBTarget() StationTarget {
	return StationTarget{Kind: KindADSB, Frequency: ADSBFrequencyMHz}
}

type SavedStation struct {
	Target     StationTarget `json:"target" yaml:"target"`
	Title      string        `json:"title" yaml:"title"`
	IsFavorite bool          `json:"isFavorite" yaml:"favorite"`
}

type SortOption string

const (
	SortFavorites   SortOption = "favorites"
	SortAlphaAsc    SortOption = "alpha-asc"
	SortAlphaDesc   SortOption = "alpha-desc"
	SortFreqAsc     SortOption = "freq-asc"
	SortFreqDesc    SortOption = "freq-desc"
	SortStationType SortOption = "type"
)

// Less reports whether a sorts before b under the option.
func (o SortOption) Less(a, b SavedStation) bool {
	switch o {
	case SortFavorites:
		if a.IsFavorite != b.IsFavorite {
			return a.IsFavorite
		}
		return a.Target.Frequency < b.Target.Frequency
	case SortAlphaAsc:
		return a.Title < b.Title
	case SortAlphaDesc:
		return a.Title > b.Title
	case SortFreqDesc:
		return a.Target.Frequency > b.Target.Frequency
	case SortStationType:
		return a.Target.Kind < b.Target.Kind
	default:
		return a.Target.Frequency < b.Target.Frequency
	}
}
