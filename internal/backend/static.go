package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/querycache/internal/querykey"
)

// subscriberBuffer bounds how many undelivered results a subscriber holds.
// A slow subscriber loses the oldest pending result, never the newest.
const subscriberBuffer = 8

// StaticSource is an in-memory Source. Results are registered per
// (identity, args) pair and pushed to subscribers as they change.
type StaticSource struct {
	mu      sync.Mutex
	results map[string][]byte
	subs    map[string][]chan []byte
	fetches map[string]int
}

// NewStaticSource returns an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		results: make(map[string][]byte),
		subs:    make(map[string][]chan []byte),
		fetches: make(map[string]int),
	}
}

// Set registers the result for a query and publishes it to subscribers.
func (s *StaticSource) Set(identity string, args any, result []byte) error {
	key, err := sourceKey(identity, args)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[key] = result
	for _, ch := range s.subs[key] {
		publish(ch, result)
	}
	return nil
}

// Fetch implements Source.
func (s *StaticSource) Fetch(ctx context.Context, identity string, args any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := sourceKey(identity, args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches[key]++
	result, ok := s.results[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, identity)
	}
	return result, nil
}

// Subscribe implements Source. The current result, if any, is delivered
// first.
func (s *StaticSource) Subscribe(ctx context.Context, identity string, args any) (<-chan []byte, error) {
	key, err := sourceKey(identity, args)
	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, subscriberBuffer)

	s.mu.Lock()
	s.subs[key] = append(s.subs[key], ch)
	if result, ok := s.results[key]; ok {
		publish(ch, result)
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[key]
		for i, c := range subs {
			if c == ch {
				s.subs[key] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// Fetches reports how many times Fetch was called for a query.
func (s *StaticSource) Fetches(identity string, args any) int {
	key, err := sourceKey(identity, args)
	if err != nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[key]
}

// publish delivers v without blocking, dropping the oldest pending value if
// the subscriber is full. Callers hold s.mu, so there is a single sender.
func publish(ch chan []byte, v []byte) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- v
}

func sourceKey(identity string, args any) (string, error) {
	k, err := querykey.Derive(identity, args, querykey.KindQuery)
	if err != nil {
		return "", err
	}
	return k.Key, nil
}
