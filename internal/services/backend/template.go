package backend

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
)

// DefaultCommands are the argv templates used when the config has none for a
// kind. Audio goes to aplay through a shell pipe so that only diagnostics
// reach the parser.
var DefaultCommands = map[string][]string{
	"hd":   {"nrsc5", "-g", "{gain}", "{freq}", "{channel}"},
	"fm":   {"sh", "-c", "rtl_fm -d {serial} -M wbfm -f {freq_hz} -g {gain} -r {sample_rate} - | aplay -q -r {sample_rate} -f S16_LE -t raw -c 1"},
	"am":   {"sh", "-c", "rtl_fm -d {serial} -M am -f {freq_hz} -g {gain} -r {sample_rate} - | aplay -q -r {sample_rate} -f S16_LE -t raw -c 1"},
	"adsb": {"rtl_adsb", "-d", "{serial}"},
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// frequencyHz converts a target frequency to Hz. AM frequencies are in kHz,
// every other kind uses MHz.
func frequencyHz(t domain.StationTarget) int64 {
	scale := 1e6
	if t.Kind == domain.KindAM {
		scale = 1e3
	}
	return int64(math.Round(t.Frequency * scale))
}

// expand fills the placeholders of an argv template. Subchannels are 1-based
// for the user and 0-based for nrsc5.
func expand(tmpl []string, target domain.StationTarget, params domain.TuningParams, serial string) ([]string, error) {
	if len(tmpl) == 0 {
		return nil, fmt.Errorf("no command configured for %s", target.Kind.Label())
	}

	channel := 0
	if target.HasSubchannel() {
		channel = target.Subchannel - 1
	}

	r := strings.NewReplacer(
		"{freq_hz}", strconv.FormatInt(frequencyHz(target), 10),
		"{freq}", formatFloat(target.Frequency),
		"{channel}", strconv.Itoa(channel),
		"{gain}", formatFloat(params.Gain),
		"{sample_rate}", strconv.FormatInt(int64(params.SampleRate), 10),
		"{volume}", formatFloat(params.Volume),
		"{serial}", serial,
	)

	argv := make([]string, len(tmpl))
	for i, arg := range tmpl {
		argv[i] = r.Replace(arg)
	}
	return argv, nil
}
