// Package directory holds the user and mail alias records answered by the
// name service handlers.
package directory

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrUserExists   = errors.New("directory: user already exists")
	ErrUIDExists    = errors.New("directory: uid already exists")
	ErrAliasExists  = errors.New("directory: alias already exists")
	ErrInvalidName  = errors.New("directory: invalid name")
	ErrInvalidAlias = errors.New("directory: invalid alias")
)

// User is one passwd record.
type User struct {
	Name  string `json:"name" toml:"name"`
	UID   uint32 `json:"uid" toml:"uid"`
	GID   uint32 `json:"gid" toml:"gid"`
	Gecos string `json:"gecos" toml:"gecos"`
	Dir   string `json:"dir" toml:"dir"`
	Shell string `json:"shell" toml:"shell"`
}

// Alias is one mail alias record.
type Alias struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Local   bool     `json:"local"`
}

// Directory stores records in insertion order with name and id indexes.
// Enumeration offsets index that order.
type Directory struct {
	mu          sync.RWMutex
	users       []User
	userByName  map[string]int
	userByUID   map[uint32]int
	aliases     []Alias
	aliasByName map[string]int
}

func New() *Directory {
	return &Directory{
		userByName:  make(map[string]int),
		userByUID:   make(map[uint32]int),
		aliasByName: make(map[string]int),
	}
}

// ValidateUser checks required record fields and name format.
func ValidateUser(u User) error {
	if !isValidName(u.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, u.Name)
	}
	if strings.ContainsAny(u.Gecos+u.Dir+u.Shell, "\x00\n") {
		return fmt.Errorf("%w: control bytes in record %q", ErrInvalidName, u.Name)
	}
	return nil
}

// ValidateAlias checks the alias name and that every member is non-empty.
func ValidateAlias(a Alias) error {
	if !isValidName(a.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, a.Name)
	}
	for i, m := range a.Members {
		if strings.TrimSpace(m) == "" || strings.ContainsRune(m, 0) {
			return fmt.Errorf("%w: %s member[%d] empty or invalid", ErrInvalidAlias, a.Name, i)
		}
	}
	return nil
}

func (d *Directory) AddUser(u User) error {
	if err := ValidateUser(u); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.userByName[u.Name]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, u.Name)
	}
	if _, ok := d.userByUID[u.UID]; ok {
		return fmt.Errorf("%w: %d", ErrUIDExists, u.UID)
	}
	d.users = append(d.users, u)
	idx := len(d.users) - 1
	d.userByName[u.Name] = idx
	d.userByUID[u.UID] = idx
	return nil
}

func (d *Directory) AddAlias(a Alias) error {
	if err := ValidateAlias(a); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.aliasByName[a.Name]; ok {
		return fmt.Errorf("%w: %s", ErrAliasExists, a.Name)
	}
	a.Members = append([]string(nil), a.Members...)
	d.aliases = append(d.aliases, a)
	d.aliasByName[a.Name] = len(d.aliases) - 1
	return nil
}

func (d *Directory) UserByName(name string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.userByName[name]
	if !ok {
		return User{}, false
	}
	return d.users[idx], true
}

func (d *Directory) UserByUID(uid uint32) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.userByUID[uid]
	if !ok {
		return User{}, false
	}
	return d.users[idx], true
}

// UserAt returns the user at enumeration offset i.
func (d *Directory) UserAt(i uint32) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if uint64(i) >= uint64(len(d.users)) {
		return User{}, false
	}
	return d.users[i], true
}

func (d *Directory) AliasByName(name string) (Alias, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx, ok := d.aliasByName[name]
	if !ok {
		return Alias{}, false
	}
	return copyAlias(d.aliases[idx]), true
}

// AliasAt returns the alias at enumeration offset i.
func (d *Directory) AliasAt(i uint32) (Alias, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if uint64(i) >= uint64(len(d.aliases)) {
		return Alias{}, false
	}
	return copyAlias(d.aliases[i]), true
}

// Counts returns the number of users and aliases.
func (d *Directory) Counts() (users, aliases int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users), len(d.aliases)
}

func copyAlias(a Alias) Alias {
	a.Members = append([]string(nil), a.Members...)
	return a
}

// isValidName accepts lowercase letters, digits and single separators, not
// leading or trailing.
func isValidName(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	lastSep := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(name)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
