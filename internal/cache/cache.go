// Package cache is the small redis-backed key-value cache of the teacher's
// profile and the previously fetched room list. It only pre-populates data
// ahead of a fresh remote fetch; the document store stays the source of
// truth for everything else.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	roomsKey      = "rollcall:rooms"
	profilePrefix = "rollcall:profile:"
)

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("cache miss")

// Profile is the locally cached teacher profile.
type Profile struct {
	TeacherID   string   `json:"teacherId"`
	Name        string   `json:"name"`
	Designation string   `json:"designation"`
	Subjects    []string `json:"subjects"`
	Classes     []string `json:"classes"`
}

// Cache wraps a redis client with typed accessors.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache; entries expire after ttl (0 keeps them forever).
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Rooms returns the cached room list.
func (c *Cache) Rooms(ctx context.Context) ([]string, error) {
	var rooms []string
	if err := c.get(ctx, roomsKey, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// SaveRooms stores the room list.
func (c *Cache) SaveRooms(ctx context.Context, rooms []string) error {
	return c.set(ctx, roomsKey, rooms)
}

// Profile returns the cached profile for a teacher.
func (c *Cache) Profile(ctx context.Context, teacherID string) (Profile, error) {
	var p Profile
	if err := c.get(ctx, profilePrefix+teacherID, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// SaveProfile stores a teacher profile.
func (c *Cache) SaveProfile(ctx context.Context, p Profile) error {
	return c.set(ctx, profilePrefix+p.TeacherID, p)
}

func (c *Cache) get(ctx context.Context, key string, out any) error {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (c *Cache) set(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}
