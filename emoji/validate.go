////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package emoji maps numeric reaction IDs to emoji glyphs and validates them.
package emoji

import (
	"sort"

	"github.com/forPelevin/gomoji"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidReaction is returned if a reaction glyph is not a single
	// emoji.
	ErrInvalidReaction = errors.New(
		"the reaction is not valid, it must be a single emoji")

	// ErrUnknownReaction is returned for reaction IDs missing from the
	// catalog.
	ErrUnknownReaction = errors.New("the reaction ID is not in the catalog")
)

// ValidateReaction checks that the reaction only contains a single emoji.
func ValidateReaction(reaction string) error {
	emojisList := gomoji.CollectAll(reaction)
	if len(emojisList) != 1 {
		return ErrInvalidReaction
	} else if emojisList[0].Character != reaction {
		// Non-emoji characters found alongside an emoji
		return ErrInvalidReaction
	}
	return nil
}

// defaultReactions is the reaction set offered when none is configured.
var defaultReactions = map[int64]string{
	1:  "❤",
	2:  "\U0001F602",
	3:  "\U0001F44D",
	4:  "\U0001F62D",
	5:  "\U0001F64F",
	6:  "\U0001F618",
	7:  "\U0001F970",
	8:  "\U0001F60D",
	9:  "\U0001F60A",
	10: "\U0001F923",
}

// Catalog is an immutable mapping between reaction IDs and glyphs.
type Catalog struct {
	byID    map[int64]string
	byGlyph map[string]int64
}

// NewCatalog builds a catalog, rejecting zero IDs, duplicate glyphs and
// glyphs that are not a single emoji.
func NewCatalog(reactions map[int64]string) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[int64]string, len(reactions)),
		byGlyph: make(map[string]int64, len(reactions)),
	}
	for id, glyph := range reactions {
		if id == 0 {
			return nil, errors.New("reaction ID 0 is reserved for no reaction")
		}
		if err := ValidateReaction(glyph); err != nil {
			return nil, errors.WithMessagef(err, "reaction %d (%q)", id, glyph)
		}
		if other, exists := c.byGlyph[glyph]; exists {
			return nil, errors.Errorf("reaction %q used by both %d and %d",
				glyph, other, id)
		}
		c.byID[id] = glyph
		c.byGlyph[glyph] = id
	}
	return c, nil
}

// DefaultCatalog returns the built-in reaction set.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultReactions)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate returns ErrUnknownReaction if the ID is not in the catalog.
func (c *Catalog) Validate(id int64) error {
	if _, exists := c.byID[id]; !exists {
		return errors.WithMessagef(ErrUnknownReaction, "reaction %d", id)
	}
	return nil
}

// Glyph returns the emoji for a reaction ID.
func (c *Catalog) Glyph(id int64) (string, bool) {
	g, ok := c.byID[id]
	return g, ok
}

// ID returns the reaction ID of an emoji.
func (c *Catalog) ID(glyph string) (int64, bool) {
	id, ok := c.byGlyph[glyph]
	return id, ok
}

// IDs returns every reaction ID in ascending order.
func (c *Catalog) IDs() []int64 {
	ids := make([]int64, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
