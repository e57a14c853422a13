package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/djlord-it/easybooking/internal/domain"
)

// Seed is the on-disk shape of a directory fixture.
//
//	{
//	  "languages": [{"id": 7, "name": "German"}],
//	  "users": [{"id": 9, "name": "Tess", "email": "tess@example.com", "language_ids": [7]}]
//	}
type Seed struct {
	Languages []SeedLanguage `json:"languages"`
	Users     []SeedUser     `json:"users"`
}

type SeedLanguage struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type SeedUser struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	LanguageIDs []int64 `json:"language_ids"`
}

// LoadSeed reads a fixture from r into d. The whole fixture is checked
// before anything is added, so a bad file leaves d untouched.
func (d *Directory) LoadSeed(r io.Reader) error {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}

	languages := make(map[int64]bool, len(seed.Languages))
	for _, l := range seed.Languages {
		if l.ID < 1 || l.Name == "" {
			return fmt.Errorf("seed language %d: id and name are required", l.ID)
		}
		if languages[l.ID] {
			return fmt.Errorf("seed language %d: duplicate id", l.ID)
		}
		languages[l.ID] = true
	}

	users := make(map[int64]bool, len(seed.Users))
	for _, u := range seed.Users {
		if u.ID < 1 || u.Email == "" {
			return fmt.Errorf("seed user %d: id and email are required", u.ID)
		}
		if users[u.ID] {
			return fmt.Errorf("seed user %d: duplicate id", u.ID)
		}
		users[u.ID] = true
		for _, lid := range u.LanguageIDs {
			if !languages[lid] {
				return fmt.Errorf("seed user %d: language %d: %w", u.ID, lid, domain.ErrNotFound)
			}
		}
	}

	for _, l := range seed.Languages {
		d.AddLanguage(l.ID, l.Name)
	}
	for _, u := range seed.Users {
		d.AddUser(domain.User{ID: u.ID, Name: u.Name, Email: u.Email, LanguageIDs: u.LanguageIDs})
	}
	return nil
}

// LoadSeedFile opens path and loads it with LoadSeed.
func (d *Directory) LoadSeedFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()

	if err := d.LoadSeed(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
