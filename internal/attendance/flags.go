package attendance

import (
	"context"

	"github.com/school-platform/attendance-service/internal/loggingclient"
	"github.com/school-platform/attendance-service/internal/replicated"
	"github.com/school-platform/attendance-service/internal/store"
)

// flagValue is the literal stored under an open window flag.
var flagValue = []byte("true")

// flagKeys are the fixed per-population flag names. No date component is
// embedded: date scoping comes entirely from the end-of-day TTL.
var flagKeys = map[Population]string{
	PopulationStaff:     "registroAsistenciaPersonal",
	PopulationPrimary:   "registroAsistenciaPrimaria",
	PopulationSecondary: "registroAsistenciaSecundaria",
}

// FlagService sets and queries the per-day, per-population attendance
// window flag. Absence of the flag, including after natural TTL expiry, is
// equivalent to "closed".
type FlagService struct {
	cache  *replicated.Client
	policy *ExpirationPolicy
	logger *loggingclient.Client
}

// NewFlagService creates a flag service.
func NewFlagService(cache *replicated.Client, policy *ExpirationPolicy, logger *loggingclient.Client) *FlagService {
	if logger == nil {
		logger = loggingclient.NewNoop()
	}
	return &FlagService{cache: cache, policy: policy, logger: logger}
}

// Open opens the attendance window for a population until the end of the
// civil day. Opening is a critical write: it fails on the first instance
// error.
func (s *FlagService) Open(ctx context.Context, caller Identity, population Population) error {
	if !population.Valid() {
		return store.WrapError(store.ErrInvalidRequest, "unknown population", nil)
	}
	if err := CanOpenWindow(caller.Role, population); err != nil {
		return err
	}

	ttl := s.policy.DayTTL()
	if err := s.cache.Set(ctx, population.Group(), flagKeys[population], flagValue, ttl, store.FanOutStrict); err != nil {
		return err
	}

	s.logger.Info(ctx, "attendance window opened",
		loggingclient.String("population", string(population)),
		loggingclient.Duration("ttl", ttl),
	)
	return nil
}

// IsOpen reports whether the attendance window of a population is open.
func (s *FlagService) IsOpen(ctx context.Context, population Population) (bool, error) {
	if !population.Valid() {
		return false, store.WrapError(store.ErrInvalidRequest, "unknown population", nil)
	}

	value, err := s.cache.Get(ctx, population.Group(), flagKeys[population])
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return string(value) == string(flagValue), nil
}
