package memstore

import (
	"context"
	"sync"

	"lendshelf/lending"
	"lendshelf/models"
)

// Catalog is an in-memory lending.ItemCatalog.
type Catalog struct {
	mu    sync.RWMutex
	items map[string]models.Item
}

func NewCatalog() *Catalog { return &Catalog{items: map[string]models.Item{}} }

func (c *Catalog) Put(it models.Item) {
	if it.Status == "" {
		it.Status = models.ItemStatusActive
	}
	c.mu.Lock()
	c.items[it.ID] = it
	c.mu.Unlock()
}

func (c *Catalog) Remove(id string) {
	c.mu.Lock()
	delete(c.items, id)
	c.mu.Unlock()
}

func (c *Catalog) GetItem(_ context.Context, id string) (*lending.ItemSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	if !ok {
		return nil, lending.E(lending.KindNotFound, "memstore.GetItem", "item not found", nil)
	}
	snap := itemSnapshot(it)
	return &snap, nil
}

func (c *Catalog) LookupItems(_ context.Context, ids []string) (map[string]lending.ItemSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]lending.ItemSnapshot, len(ids))
	for _, id := range ids {
		if it, ok := c.items[id]; ok {
			out[id] = itemSnapshot(it)
		}
	}
	return out, nil
}

func itemSnapshot(it models.Item) lending.ItemSnapshot {
	return lending.ItemSnapshot{ID: it.ID, OwnerID: it.OwnerID, Name: it.Name, Status: it.Status}
}

// Directory is an in-memory lending.ProfileDirectory.
type Directory struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func NewDirectory() *Directory { return &Directory{users: map[string]models.User{}} }

func (d *Directory) Put(u models.User) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

func (d *Directory) Remove(id string) {
	d.mu.Lock()
	delete(d.users, id)
	d.mu.Unlock()
}

func (d *Directory) ProfileExists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[id]
	return ok, nil
}

func (d *Directory) LookupProfiles(_ context.Context, ids []string) (map[string]lending.ProfileSnapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]lending.ProfileSnapshot, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = lending.ProfileSnapshot{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
		}
	}
	return out, nil
}
