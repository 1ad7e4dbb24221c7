package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	apperrors "github.com/bbuddy/scan-relay-go/internal/errors"
	redisclient "github.com/bbuddy/scan-relay-go/internal/redis"
)

// ErrInvalidState is returned by SetMode when the state is not an integer.
var ErrInvalidState = errors.New("invalid state provided")

// ModeCache keeps the last successful getmode body for a short while.
type ModeCache interface {
	Get(ctx context.Context) ([]byte, bool, error)
	Set(ctx context.Context, body []byte, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type redisModeCache struct {
	client goredis.Cmdable
}

func NewRedisModeCache(client goredis.Cmdable) ModeCache {
	return &redisModeCache{client: client}
}

func (c *redisModeCache) Get(ctx context.Context) ([]byte, bool, error) {
	body, err := c.client.Get(ctx, redisclient.ModeCacheKey()).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

func (c *redisModeCache) Set(ctx context.Context, body []byte, ttl time.Duration) error {
	return c.client.Set(ctx, redisclient.ModeCacheKey(), body, ttl).Err()
}

func (c *redisModeCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, redisclient.ModeCacheKey()).Err()
}

type ModeService struct {
	buddy BuddyClient
	cache ModeCache
	ttl   time.Duration
}

// NewModeService caches getmode replies for ttl. A nil cache or a
// non-positive ttl disables caching.
func NewModeService(buddy BuddyClient, cache ModeCache, ttl time.Duration) *ModeService {
	return &ModeService{
		buddy: buddy,
		cache: cache,
		ttl:   ttl,
	}
}

func (s *ModeService) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

// GetMode returns the upstream getmode reply, served from cache when fresh.
func (s *ModeService) GetMode(ctx context.Context) (*UpstreamResponse, error) {
	if s.cacheEnabled() {
		body, ok, err := s.cache.Get(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("mode cache read failed")
		} else if ok {
			return &UpstreamResponse{
				StatusCode:  200,
				ContentType: "application/json",
				Body:        body,
			}, nil
		}
	}

	resp, err := s.buddy.GetMode(ctx)
	if err != nil {
		return nil, apperrors.UpstreamUnavailable(err)
	}

	if s.cacheEnabled() && resp.OK() {
		if err := s.cache.Set(ctx, resp.Body, s.ttl); err != nil {
			log.Warn().Err(err).Msg("mode cache write failed")
		}
	}
	return resp, nil
}

// ParseState reads the setmode state field.
func ParseState(raw string) (int, error) {
	state, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, ErrInvalidState
	}
	return state, nil
}

// SetMode forwards a mode change. The cached mode is dropped once Barcode
// Buddy accepts it.
func (s *ModeService) SetMode(ctx context.Context, raw string) (*UpstreamResponse, error) {
	state, err := ParseState(raw)
	if err != nil {
		log.Warn().Str("state", raw).Msg("invalid state value")
		return nil, err
	}

	resp, err := s.buddy.SetMode(ctx, state)
	if err != nil {
		return nil, apperrors.UpstreamUnavailable(err)
	}

	if s.cache != nil && resp.OK() {
		if err := s.cache.Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("mode cache invalidation failed")
		}
	}
	return resp, nil
}
