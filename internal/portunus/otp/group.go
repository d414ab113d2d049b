package otp

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/BrandonDHaskell/Portunus/gate/internal/portunus/types"
)

var ErrUnknownGroup = errors.New("otp: category has no group code")

// GroupCodes is the table of long-lived shared codes, one per category.
// Codes are held only as bcrypt hashes. One mutex guards the whole table;
// verification copies the hash out and compares outside the lock.
type GroupCodes struct {
	mu     sync.RWMutex
	hashes map[types.Category][]byte
	cost   int
}

func NewGroupCodes(cost int) *GroupCodes {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &GroupCodes{hashes: make(map[types.Category][]byte), cost: cost}
}

// Set assigns or rotates the code for a group category.
func (g *GroupCodes) Set(cat types.Category, code string) error {
	if !cat.HasGroupCode() {
		return ErrUnknownGroup
	}
	if !ValidCode(code) {
		return ErrInvalidCode
	}
	h, err := bcrypt.GenerateFromPassword([]byte(code), g.cost)
	if err != nil {
		return fmt.Errorf("hash group code: %w", err)
	}

	g.mu.Lock()
	g.hashes[cat] = h
	g.mu.Unlock()
	return nil
}

// Verify checks code against one category. It never consumes the code.
func (g *GroupCodes) Verify(cat types.Category, code string) error {
	g.mu.RLock()
	h, ok := g.hashes[cat]
	g.mu.RUnlock()
	if !ok {
		return ErrUnknownGroup
	}
	if bcrypt.CompareHashAndPassword(h, []byte(code)) != nil {
		return ErrMismatch
	}
	return nil
}

// Match returns the first category, in name order, whose code is code.
func (g *GroupCodes) Match(code string) (types.Category, bool) {
	for _, cat := range g.Categories() {
		if g.Verify(cat, code) == nil {
			return cat, true
		}
	}
	return "", false
}

// Categories lists the categories that currently have a code.
func (g *GroupCodes) Categories() []types.Category {
	g.mu.RLock()
	out := make([]types.Category, 0, len(g.hashes))
	for c := range g.hashes {
		out = append(out, c)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
