package domain

// Chapter is a chapter of the scripture. Seeded once, never mutated.
type Chapter struct {
	ID            int64  `json:"id"`
	ChapterNumber int    `json:"chapterNumber"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
}

// WordMeaning is a single word-by-word gloss entry.
type WordMeaning struct {
	Sanskrit string `json:"sanskrit" yaml:"sanskrit"`
	English  string `json:"english" yaml:"english"`
}

// Verse is a shloka with its translation and commentary.
type Verse struct {
	ID              int64         `json:"id"`
	ChapterID       int64         `json:"chapterId"`
	VerseNumber     int           `json:"verseNumber"`
	Sanskrit        string        `json:"sanskrit"`
	Transliteration string        `json:"transliteration"`
	Translation     string        `json:"translation"`
	Purport         string        `json:"purport,omitempty"`
	WordMeanings    []WordMeaning `json:"wordMeanings,omitempty"`
}
