package ports

import (
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"
)

type StationStore interface {
	List(sort domain.SortOption) ([]domain.SavedStation, error)
	Save(station domain.SavedStation) error
	Remove(station domain.SavedStation) error
	Update(old, updated domain.SavedStation) error
	IsSaved(target domain.StationTarget) (bool, error)
}

// TuningStore persists per-kind receiver settings. TuningParams reports
// false when nothing has been stored for the kind.
type TuningStore interface {
	TuningParams(kind domain.Kind) (domain.TuningParams, bool, error)
	SetTuningParams(kind domain.Kind, params domain.TuningParams) error
}

type StatsStore interface {
	AddListeningTime(d time.Duration) (time.Duration, error)
	ListeningTime() (time.Duration, error)
}

type StorageService interface {
	StationStore
	TuningStore
	StatsStore
	Close() error
}
