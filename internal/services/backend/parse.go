package backend

import (
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/ports"
)

// frameReportEvery limits how often raw ADS-B frame counts are reported.
const frameReportEvery = 20

// outputParser turns one line of sidecar output into events. Parsers keep
// just enough state to avoid repeating the same status.
type outputParser interface {
	Parse(line string) []ports.Event
}

func newParser(kind domain.Kind) outputParser {
	switch kind {
	case domain.KindHDRadio:
		return &nrsc5Parser{kind: kind}
	case domain.KindADSB:
		return &adsbParser{kind: kind, seen: map[string]bool{}}
	default:
		return &rtlfmParser{kind: kind}
	}
}

var nrsc5Fields = []struct{ prefix, key string }{
	{"Title: ", "title"},
	{"Artist: ", "artist"},
	{"Audio bit rate: ", "bitrate"},
	{"Station name: ", "station"},
	{"Slogan: ", "slogan"},
	{"Message: ", "message"},
	{"BER: ", "ber"},
}

type nrsc5Parser struct {
	kind    domain.Kind
	running bool
	sync    string
}

// isTimestamp matches the hh:mm:ss prefix nrsc5 puts on decoded lines.
func isTimestamp(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 32); err != nil {
			return false
		}
	}
	return true
}

func (p *nrsc5Parser) Parse(line string) []ports.Event {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "Found") {
		return []ports.Event{ports.StatusEvent(p.kind, ports.StatusStarting)}
	}
	if strings.Contains(line, "Open device failed") || strings.Contains(line, "No supported devices") {
		return []ports.Event{ports.FatalEvent(p.kind, line)}
	}

	stamp, message, _ := strings.Cut(line, " ")
	if !isTimestamp(stamp) {
		return nil
	}

	var events []ports.Event
	if !p.running {
		p.running = true
		events = append(events, ports.StatusEvent(p.kind, ports.StatusRunning))
	}

	sync := "synced"
	if strings.HasPrefix(message, "Lost synchronization") {
		sync = "lost"
	}
	md := map[string]string{}
	if sync != p.sync {
		p.sync = sync
		md["sync"] = sync
	}

	for _, f := range nrsc5Fields {
		if value, ok := strings.CutPrefix(message, f.prefix); ok {
			if f.key == "ber" {
				value, _, _ = strings.Cut(value, ",")
			}
			md[f.key] = strings.TrimSpace(value)
			break
		}
	}

	if len(md) > 0 {
		events = append(events, ports.MetadataEvent(p.kind, md))
	}
	return events
}

type rtlfmParser struct {
	kind    domain.Kind
	running bool
}

func (p *rtlfmParser) Parse(line string) []ports.Event {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "Failed to open"), strings.HasPrefix(line, "No supported devices"):
		return []ports.Event{ports.FatalEvent(p.kind, line)}
	case strings.HasPrefix(line, "Found"):
		return []ports.Event{ports.StatusEvent(p.kind, ports.StatusStarting)}
	case strings.HasPrefix(line, "Tuned to") && !p.running:
		p.running = true
		return []ports.Event{ports.StatusEvent(p.kind, ports.StatusRunning)}
	}
	return nil
}

// adsbParser understands both JSON aircraft lines and raw "*hex;" frames.
type adsbParser struct {
	kind    domain.Kind
	running bool
	frames  int
	seen    map[string]bool
}

var adsbFields = []struct {
	key  string
	path string
}{
	{"flight", "flight"},
	{"altitude", "alt_baro"},
	{"lat", "lat"},
	{"lon", "lon"},
	{"speed", "gs"},
	{"track", "track"},
}

func (p *adsbParser) Parse(line string) []ports.Event {
	line = strings.TrimSpace(line)
	rtl := rtlfmParser{kind: p.kind, running: p.running}

	switch {
	case strings.HasPrefix(line, "{"):
		return p.parseJSON([]byte(line))
	case strings.HasPrefix(line, "*") && strings.HasSuffix(line, ";"):
		return p.parseFrame(strings.Trim(line, "*;"))
	}

	events := rtl.Parse(line)
	p.running = rtl.running
	return events
}

func (p *adsbParser) markRunning(events []ports.Event) []ports.Event {
	if p.running {
		return events
	}
	p.running = true
	return append(events, ports.StatusEvent(p.kind, ports.StatusRunning))
}

func (p *adsbParser) parseJSON(data []byte) []ports.Event {
	hex, err := jsonparser.GetString(data, "hex")
	if err != nil || hex == "" {
		return nil
	}
	p.seen[hex] = true

	md := map[string]string{
		"hex":      hex,
		"aircraft": strconv.Itoa(len(p.seen)),
	}
	for _, f := range adsbFields {
		value, dataType, _, err := jsonparser.Get(data, f.path)
		if err != nil || dataType == jsonparser.Null {
			continue
		}
		md[f.key] = strings.TrimSpace(string(value))
	}

	return append(p.markRunning(nil), ports.MetadataEvent(p.kind, md))
}

func (p *adsbParser) parseFrame(frame string) []ports.Event {
	if len(frame) < 14 {
		return nil
	}
	p.frames++
	// Bytes 1-3 of every extended squitter carry the ICAO address.
	p.seen[strings.ToUpper(frame[2:8])] = true

	events := p.markRunning(nil)
	if p.frames == 1 || p.frames%frameReportEvery == 0 {
		events = append(events, ports.MetadataEvent(p.kind, map[string]string{
			"frames":   strconv.Itoa(p.frames),
			"aircraft": strconv.Itoa(len(p.seen)),
		}))
	}
	return events
}
