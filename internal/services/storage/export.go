package storage

import (
	"fmt"
	"io"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/logger"

	"gopkg.in/yaml.v3"
)

const exportVersion = 1

type stationFile struct {
	Version  int                   `yaml:"version"`
	Stations []domain.SavedStation `yaml:"stations"`
}

// Export writes every saved station as YAML.
func (s *BboltStore) Export(w io.Writer) error {
	stations, err := s.List(domain.SortFreqAsc)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(stationFile{Version: exportVersion, Stations: stations}); err != nil {
		return fmt.Errorf("could not encode stations: %w", err)
	}
	return enc.Close()
}

// Import saves the stations of a YAML export and returns how many were read.
// Stations that are already saved are left untouched.
func (s *BboltStore) Import(r io.Reader) (int, error) {
	var file stationFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return 0, fmt.Errorf("could not decode stations: %w", err)
	}
	if file.Version > exportVersion {
		return 0, fmt.Errorf("unsupported station file version %d", file.Version)
	}

	for i, station := range file.Stations {
		if err := s.Save(station); err != nil {
			return i, fmt.Errorf("station %d (%s): %w", i+1, station.Title, err)
		}
	}
	logger.Log.Info().Int("count", len(file.Stations)).Msg("Stations imported")
	return len(file.Stations), nil
}
