// Package refdata reads the static reference lists the teacher picks from:
// subject names, class group names and room names, each held in a single
// well-known document.
package refdata

import (
	"context"
	"fmt"
	"log"

	"rollcall/internal/cache"
	"rollcall/internal/store"
)

// Service fetches reference lists from the store, falling back to the local
// cache for rooms when the store is unreachable.
type Service struct {
	store store.Store
	cache *cache.Cache
}

// NewService creates a reference data service. cache may be nil.
func NewService(st store.Store, c *cache.Cache) *Service {
	return &Service{store: st, cache: c}
}

// Subjects returns the known subject names.
func (s *Service) Subjects(ctx context.Context) ([]string, error) {
	return s.list(ctx, "subjects_list", "subjects_list", "subjects_list")
}

// ClassGroups returns the known class group names.
func (s *Service) ClassGroups(ctx context.Context) ([]string, error) {
	return s.list(ctx, "classes", "classes_list", "classes_list")
}

// Rooms returns the known room names. A fresh fetch refreshes the cache;
// when the store is unreachable the previously cached list is served.
func (s *Service) Rooms(ctx context.Context) ([]string, error) {
	rooms, err := s.list(ctx, "rooms", "rooms_list", "rooms_list")
	if err != nil {
		if s.cache != nil {
			if cached, cerr := s.cache.Rooms(ctx); cerr == nil && len(cached) > 0 {
				log.Printf("refdata: serving %d cached rooms: %v", len(cached), err)
				return cached, nil
			}
		}
		return nil, err
	}
	if s.cache != nil {
		if cerr := s.cache.SaveRooms(ctx, rooms); cerr != nil {
			log.Printf("refdata: cache rooms failed: %v", cerr)
		}
	}
	return rooms, nil
}

func (s *Service) list(ctx context.Context, collection, id, field string) ([]string, error) {
	doc, err := s.store.Get(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("refdata %s: %w", collection, err)
	}
	return stringList(doc[field]), nil
}

// stringList tolerates both typed and decoded array shapes.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
