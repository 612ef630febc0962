// README: Booking flow store backed by Redis (decision stage, latest quote, selection).
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"caretransit/internal/modules/catalog"
	"caretransit/internal/types"
)

const (
	stateKeyPrefix     = "bookingflow:appt:%s:state"
	quoteKeyPrefix     = "bookingflow:appt:%s:quote"
	selectionKeyPrefix = "bookingflow:appt:%s:selection"
	// TTL for flow keys (a decision should resolve well within a day).
	flowKeyTTL = 24 * time.Hour
)

type RedisFlowStore struct {
	redis *redis.Client
}

func NewRedisFlowStore(redis *redis.Client) *RedisFlowStore {
	return &RedisFlowStore{redis: redis}
}

func (s *RedisFlowStore) GetState(ctx context.Context, appointmentID types.ID) (FlowState, bool, error) {
	val, err := s.redis.Get(ctx, stateKey(appointmentID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return FlowState(val), true, nil
}

func (s *RedisFlowStore) SetState(ctx context.Context, appointmentID types.ID, state FlowState) error {
	return s.redis.Set(ctx, stateKey(appointmentID), string(state), flowKeyTTL).Err()
}

type storedQuote struct {
	Trip   Trip                   `json:"trip"`
	Offers []catalog.ServiceOffer `json:"offers"`
}

func (s *RedisFlowStore) SaveQuote(ctx context.Context, appointmentID types.ID, trip Trip, offers []catalog.ServiceOffer) error {
	payload, err := json.Marshal(storedQuote{Trip: trip, Offers: offers})
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, quoteKey(appointmentID), payload, flowKeyTTL).Err()
}

func (s *RedisFlowStore) GetQuote(ctx context.Context, appointmentID types.ID) (Trip, []catalog.ServiceOffer, bool, error) {
	val, err := s.redis.Get(ctx, quoteKey(appointmentID)).Result()
	if err == redis.Nil {
		return Trip{}, nil, false, nil
	}
	if err != nil {
		return Trip{}, nil, false, err
	}
	var q storedQuote
	if err := json.Unmarshal([]byte(val), &q); err != nil {
		return Trip{}, nil, false, err
	}
	return q.Trip, q.Offers, true, nil
}

func (s *RedisFlowStore) SaveSelection(ctx context.Context, appointmentID types.ID, offerID string) error {
	return s.redis.Set(ctx, selectionKey(appointmentID), offerID, flowKeyTTL).Err()
}

func (s *RedisFlowStore) GetSelection(ctx context.Context, appointmentID types.ID) (string, bool, error) {
	val, err := s.redis.Get(ctx, selectionKey(appointmentID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func stateKey(appointmentID types.ID) string {
	return fmt.Sprintf(stateKeyPrefix, string(appointmentID))
}

func quoteKey(appointmentID types.ID) string {
	return fmt.Sprintf(quoteKeyPrefix, string(appointmentID))
}

func selectionKey(appointmentID types.ID) string {
	return fmt.Sprintf(selectionKeyPrefix, string(appointmentID))
}
