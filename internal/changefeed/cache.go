package changefeed

import (
	"sync"

	"github.com/google/uuid"
)

// Cache - материализованное представление одной сущности.
// Записи хранятся по значению и заменяются целиком, читатели не видят частичных записей.
type Cache[T Record] struct {
	mu    sync.RWMutex
	items map[uuid.UUID]T
	order []uuid.UUID
}

func NewCache[T Record]() *Cache[T] {
	return &Cache[T]{items: make(map[uuid.UUID]T)}
}

// Get возвращает запись по ключу
func (c *Cache[T]) Get(id uuid.UUID) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.items[id]
	return rec, ok
}

// List возвращает копию содержимого в порядке первого появления записей
func (c *Cache[T]) List() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// replace заменяет содержимое целиком (результат seed)
func (c *Cache[T]) replace(records []T) {
	items := make(map[uuid.UUID]T, len(records))
	order := make([]uuid.UUID, 0, len(records))
	for _, rec := range records {
		if _, dup := items[rec.Key()]; !dup {
			order = append(order, rec.Key())
		}
		items[rec.Key()] = rec
	}
	c.items = items
	c.order = order
}

// upsert вставляет или заменяет запись. Возвращает предыдущее значение.
func (c *Cache[T]) upsert(rec T) (T, bool) {
	prev, ok := c.items[rec.Key()]
	if !ok {
		c.order = append(c.order, rec.Key())
	}
	c.items[rec.Key()] = rec
	return prev, ok
}

func (c *Cache[T]) remove(id uuid.UUID) (T, bool) {
	prev, ok := c.items[id]
	if !ok {
		return prev, false
	}
	delete(c.items, id)
	for i, key := range c.order {
		if key == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return prev, true
}
