package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
	"github.com/gabrielcapilla/sdrtune/internal/logger"
	"github.com/gabrielcapilla/sdrtune/internal/ports"

	"go.etcd.io/bbolt"
)

var _ ports.StorageService = (*BboltStore)(nil)

var (
	stationsBucket = []byte("stations")
	tuningBucket   = []byte("tuning")
	statsBucket    = []byte("stats")

	listeningKey = []byte("listening")
)

type BboltStore struct {
	db *bbolt.DB
}

func NewBboltStore(dbPath string) (*BboltStore, error) {
	options := &bbolt.Options{Timeout: 1 * time.Second}
	db, err := bbolt.Open(dbPath, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("could not open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{stationsBucket, tuningBucket, statsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create buckets: %w", err)
	}

	return &BboltStore{db: db}, nil
}

func stationKey(t domain.StationTarget) []byte {
	return []byte(fmt.Sprintf("%s:%s:%d", t.Kind, strconv.FormatFloat(t.Frequency, 'f', -1, 64), t.Subchannel))
}

// findLoose returns the key of a saved station that loosely matches target.
func findLoose(b *bbolt.Bucket, target domain.StationTarget) ([]byte, error) {
	if v := b.Get(stationKey(target)); v != nil {
		return stationKey(target), nil
	}

	c := b.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var saved domain.SavedStation
		if err := json.Unmarshal(v, &saved); err != nil {
			return nil, fmt.Errorf("error deserializing station %s: %w", k, err)
		}
		if domain.Equal(&saved.Target, &target, false) {
			return slices.Clone(k), nil
		}
	}
	return nil, nil
}

func putStation(b *bbolt.Bucket, station domain.SavedStation) error {
	value, err := json.Marshal(station)
	if err != nil {
		return fmt.Errorf("error serializing station: %w", err)
	}
	return b.Put(stationKey(station.Target), value)
}

// Save stores a station unless one matching its target is already saved.
func (s *BboltStore) Save(station domain.SavedStation) error {
	if err := station.Target.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(stationsBucket)
		existing, err := findLoose(b, station.Target)
		if err != nil {
			return err
		}
		if existing != nil {
			logger.Log.Debug().Stringer("target", station.Target).Msg("Station already saved")
			return nil
		}
		return putStation(b, station)
	})
}

func (s *BboltStore) Remove(station domain.SavedStation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(stationsBucket)
		key, err := findLoose(b, station.Target)
		if err != nil || key == nil {
			return err
		}
		return b.Delete(key)
	})
}

// Update replaces old with updated. When old is not saved, updated is saved
// as a new station.
func (s *BboltStore) Update(old, updated domain.SavedStation) error {
	if err := updated.Target.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(stationsBucket)
		key, err := findLoose(b, old.Target)
		if err != nil {
			return err
		}
		if key != nil {
			if err := b.Delete(key); err != nil {
				return err
			}
		}
		return putStation(b, updated)
	})
}

func (s *BboltStore) IsSaved(target domain.StationTarget) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		key, err := findLoose(tx.Bucket(stationsBucket), target)
		found = key != nil
		return err
	})
	return found, err
}

func (s *BboltStore) List(sort domain.SortOption) ([]domain.SavedStation, error) {
	var stations []domain.SavedStation

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(stationsBucket).ForEach(func(k, v []byte) error {
			var station domain.SavedStation
			if err := json.Unmarshal(v, &station); err != nil {
				return fmt.Errorf("error deserializing station %s: %w", k, err)
			}
			stations = append(stations, station)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(stations, func(a, b domain.SavedStation) int {
		switch {
		case sort.Less(a, b):
			return -1
		case sort.Less(b, a):
			return 1
		}
		return 0
	})
	return stations, nil
}

func (s *BboltStore) TuningParams(kind domain.Kind) (domain.TuningParams, bool, error) {
	var params domain.TuningParams
	var found bool

	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(tuningBucket).Get([]byte(kind.String()))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &params)
	})
	if err != nil {
		return domain.TuningParams{}, false, fmt.Errorf("error reading tuning params for %s: %w", kind, err)
	}
	return params, found, nil
}

func (s *BboltStore) SetTuningParams(kind domain.Kind, params domain.TuningParams) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown stream kind %d", int(kind))
	}
	value, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("error serializing tuning params: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(tuningBucket).Put([]byte(kind.String()), value)
	})
}

func readDuration(b *bbolt.Bucket, key []byte) (time.Duration, error) {
	v := b.Get(key)
	if v == nil {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, errors.Join(fmt.Errorf("corrupt %s counter", key), err)
	}
	return time.Duration(n), nil
}

// AddListeningTime adds d to the listening counter and returns the new total.
func (s *BboltStore) AddListeningTime(d time.Duration) (time.Duration, error) {
	var total time.Duration
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(statsBucket)
		current, err := readDuration(b, listeningKey)
		if err != nil {
			return err
		}
		total = current + d
		return b.Put(listeningKey, []byte(strconv.FormatInt(int64(total), 10)))
	})
	return total, err
}

func (s *BboltStore) ListeningTime() (time.Duration, error) {
	var total time.Duration
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		total, err = readDuration(tx.Bucket(statsBucket), listeningKey)
		return err
	})
	return total, err
}

func (s *BboltStore) Close() error {
	return s.db.Close()
}
