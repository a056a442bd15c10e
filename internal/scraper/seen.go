package scraper

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SeenSet remembers recently crawled product URLs. Once full, the least
// recently seen URL is forgotten. A nil *SeenSet treats every URL as new.
type SeenSet struct {
	cache *lru.Cache[string, struct{}]
}

func NewSeenSet(size int) (*SeenSet, error) {
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create seen set: %w", err)
	}
	return &SeenSet{cache: cache}, nil
}

// FirstSeen records url and reports whether it was not already present.
func (s *SeenSet) FirstSeen(url string) bool {
	if s == nil {
		return true
	}
	found, _ := s.cache.ContainsOrAdd(url, struct{}{})
	return !found
}

func (s *SeenSet) Len() int {
	if s == nil {
		return 0
	}
	return s.cache.Len()
}
