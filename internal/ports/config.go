package ports

import "github.com/gabrielcapilla/sdrtune/internal/domain"

type ConfigService interface {
	Load() (domain.Config, error)
}
