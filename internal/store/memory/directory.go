package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/djlord-it/easybooking/internal/domain"
)

// Directory holds users and languages for the memory store.
type Directory struct {
	mu        sync.RWMutex
	users     map[int64]domain.User
	languages map[int64]string
}

func NewDirectory() *Directory {
	return &Directory{
		users:     make(map[int64]domain.User),
		languages: make(map[int64]string),
	}
}

// AddUser inserts or replaces a user.
func (d *Directory) AddUser(u domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u.LanguageIDs = append([]int64(nil), u.LanguageIDs...)
	d.users[u.ID] = u
}

func (d *Directory) AddLanguage(id int64, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.languages[id] = name
}

func (d *Directory) ResolveUser(_ context.Context, id int64) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return domain.User{}, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	u.LanguageIDs = append([]int64(nil), u.LanguageIDs...)
	return u, nil
}

func (d *Directory) UserExists(_ context.Context, id int64) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[id]
	return ok, nil
}

func (d *Directory) LanguageExists(_ context.Context, id int64) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.languages[id]
	return ok, nil
}
