package recipes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store is the persistence boundary the rest of the pipeline consumes. Step
// arrays are opaque ordered data; callers never depend on the physical layout.
type Store interface {
	List(ctx context.Context) ([]Recipe, error)
	Get(ctx context.Context, id string) (*Recipe, error)
	Create(ctx context.Context, r Recipe) (string, error)
	Update(ctx context.Context, id string, u Update) error
	Delete(ctx context.Context, id string) error
}

// Publisher receives store mutation events. Satisfied by eventbus.Bus; nil
// disables publishing.
type Publisher interface {
	PublishType(ctx context.Context, eventType, recipeID, detail string) error
}

// RedisStore keeps each recipe as a JSON blob under its own key plus an index
// set of known IDs.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	events Publisher
}

func NewRedisStore(rdb *redis.Client, events Publisher) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "bankflow", events: events}
}

func (s *RedisStore) keyRecipe(id string) string { return s.prefix + ":recipe:" + id }
func (s *RedisStore) keyIndex() string           { return s.prefix + ":recipes" }

func (s *RedisStore) Create(ctx context.Context, r Recipe) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if err := r.Validate(); err != nil {
		return "", err
	}
	if err := s.save(ctx, &r); err != nil {
		return "", err
	}
	s.publish(ctx, "recipe_created", r.ID, r.Name)
	return r.ID, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Recipe, error) {
	v, err := s.rdb.Get(ctx, s.keyRecipe(id)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r Recipe
	if err := json.Unmarshal([]byte(v), &r); err != nil {
		return nil, fmt.Errorf("decode recipe %s: %w", id, err)
	}
	return &r, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Recipe, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Recipe, 0, len(ids))
	for _, id := range ids {
		r, err := s.Get(ctx, id)
		if err == ErrNotFound {
			// Index entry outlived its blob; drop it.
			_ = s.rdb.SRem(ctx, s.keyIndex(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, u Update) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if u.Name != nil {
		r.Name = *u.Name
	}
	if u.TargetURL != nil {
		r.TargetURL = *u.TargetURL
	}
	if u.Institution != nil {
		r.Institution = *u.Institution
	}
	if u.LinkedAccountID != nil {
		r.LinkedAccountID = *u.LinkedAccountID
	}
	if u.Steps != nil {
		r.Steps = *u.Steps
	}
	if u.LastRunAt != nil {
		r.LastRunAt = u.LastRunAt
	}
	if u.LastExtractionMethod != nil {
		r.LastExtractionMethod = *u.LastExtractionMethod
	}
	r.UpdatedAt = time.Now().UTC()
	if err := r.Validate(); err != nil {
		return err
	}
	if err := s.save(ctx, r); err != nil {
		return err
	}
	s.publish(ctx, "recipe_updated", r.ID, r.Name)
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, s.keyRecipe(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	_ = s.rdb.SRem(ctx, s.keyIndex(), id).Err()
	s.publish(ctx, "recipe_deleted", id, "")
	return nil
}

func (s *RedisStore) save(ctx context.Context, r *Recipe) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.keyRecipe(r.ID), b, 0).Err(); err != nil {
		return err
	}
	return s.rdb.SAdd(ctx, s.keyIndex(), r.ID).Err()
}

func (s *RedisStore) publish(ctx context.Context, eventType, id, detail string) {
	if s.events == nil {
		return
	}
	_ = s.events.PublishType(ctx, eventType, id, detail)
}
