// Package parser reads markdown card decks. A deck file holds cards as
// prefixed blocks:
//
//	Q: front text
//	A: back text
//	C: optional source context
//	---
//
// Each prefix starts a field, continuation lines extend it, and a new
// Q: or a --- separator starts the next card.
package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/decksmith/internal/domain"
)

const (
	frontPrefix   = "Q:"
	backPrefix    = "A:"
	contextPrefix = "C:"
	separator     = "---"
)

type field int

const (
	none field = iota
	front
	back
	contextField
)

// ParseFile reads a deck file and extracts all card candidates.
func ParseFile(path string) ([]domain.Candidate, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse extracts all card candidates from a deck.
func Parse(r io.Reader) ([]domain.Candidate, error) {
	p := deckParser{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	p.finishCard()
	return p.cards, nil
}

type deckParser struct {
	cards   []domain.Candidate
	current domain.Candidate
	field   field
	block   []string
}

func (p *deckParser) line(line string) {
	switch {
	case line == separator:
		p.finishCard()
	case strings.HasPrefix(line, frontPrefix):
		// A new front always starts a new card.
		if p.field != none {
			p.finishCard()
		}
		p.startField(front, line, frontPrefix)
	case strings.HasPrefix(line, backPrefix):
		p.startField(back, line, backPrefix)
	case strings.HasPrefix(line, contextPrefix):
		p.startField(contextField, line, contextPrefix)
	case p.field != none:
		p.block = append(p.block, line)
	}
}

func (p *deckParser) startField(f field, line, prefix string) {
	p.flushBlock()
	p.field = f
	p.block = append(p.block, strings.TrimPrefix(strings.TrimPrefix(line, prefix), " "))
}

// flushBlock assigns the accumulated lines to the field being read.
func (p *deckParser) flushBlock() {
	if len(p.block) == 0 {
		return
	}
	content := strings.Join(p.block, "\n")
	switch p.field {
	case front:
		p.current.Front = content
	case back:
		p.current.Back = content
	case contextField:
		p.current.Context = content
	}
	p.block = nil
}

func (p *deckParser) finishCard() {
	p.flushBlock()
	if p.current.Front != "" {
		p.cards = append(p.cards, p.current)
	}
	p.current = domain.Candidate{}
	p.field = none
}
