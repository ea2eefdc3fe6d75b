package store

import (
	_ "embed"
	"fmt"

	"github.com/ashureev/gita-reflect/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

// seedData is the reference dataset loaded into an empty store.
type seedData struct {
	Chapters []seedChapter `yaml:"chapters"`
	Verses   []seedVerse   `yaml:"verses"`
}

type seedChapter struct {
	Number      int    `yaml:"number"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type seedVerse struct {
	Chapter         int                  `yaml:"chapter"`
	Verse           int                  `yaml:"verse"`
	Sanskrit        string               `yaml:"sanskrit"`
	Transliteration string               `yaml:"transliteration"`
	Translation     string               `yaml:"translation"`
	Purport         string               `yaml:"purport"`
	WordMeanings    []domain.WordMeaning `yaml:"wordMeanings"`
}

func loadSeed() (*seedData, error) {
	var data seedData
	if err := yaml.Unmarshal(seedYAML, &data); err != nil {
		return nil, fmt.Errorf("parse seed data: %w", err)
	}
	if err := data.validate(); err != nil {
		return nil, fmt.Errorf("invalid seed data: %w", err)
	}
	return &data, nil
}

func (d *seedData) validate() error {
	chapters := make(map[int]bool, len(d.Chapters))
	for i, c := range d.Chapters {
		if c.Number != i+1 {
			return fmt.Errorf("chapter %d out of order at position %d", c.Number, i+1)
		}
		chapters[c.Number] = true
	}
	seen := make(map[[2]int]bool, len(d.Verses))
	for _, v := range d.Verses {
		if !chapters[v.Chapter] {
			return fmt.Errorf("verse %d.%d references unknown chapter", v.Chapter, v.Verse)
		}
		key := [2]int{v.Chapter, v.Verse}
		if seen[key] {
			return fmt.Errorf("duplicate verse %d.%d", v.Chapter, v.Verse)
		}
		seen[key] = true
	}
	return nil
}
