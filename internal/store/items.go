package store

import (
	"context"
	"time"

	"github.com/roach88/glyph/internal/host"
)

// itemTimeout bounds each host.ItemStorage call, which carries no context.
const itemTimeout = 5 * time.Second

// Data implements host.ItemStorage.
func (s *Store) Data(item host.Item, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), itemTimeout)
	defer cancel()
	return s.Get(ctx, item.ID(), NamespaceData, key)
}

// SetData implements host.ItemStorage.
func (s *Store) SetData(item host.Item, key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), itemTimeout)
	defer cancel()
	return s.Put(ctx, item.ID(), NamespaceData, key, value)
}

// Raw implements host.ItemStorage.
func (s *Store) Raw(item host.Item, path string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), itemTimeout)
	defer cancel()
	return s.Get(ctx, item.ID(), NamespaceRaw, path)
}

// SetRaw implements host.ItemStorage.
func (s *Store) SetRaw(item host.Item, path, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), itemTimeout)
	defer cancel()
	return s.Put(ctx, item.ID(), NamespaceRaw, path, value)
}

var _ host.ItemStorage = (*Store)(nil)
