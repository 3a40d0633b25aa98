package database

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"
)

// BadWordsURL is the default source for the display-name filter.
const BadWordsURL = "https://raw.githubusercontent.com/LDNOOBW/List-of-Dirty-Naughty-Obscene-and-Otherwise-Bad-Words/refs/heads/master/en"

// SeedBadWords fetches and seeds the bad words list unless it is already populated
func (db *DB) SeedBadWords(ctx context.Context, url string) error {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bad_words").Scan(&count); err != nil {
		return fmt.Errorf("failed to check bad words count: %w", err)
	}
	if count > 0 {
		db.log.Debug().Int("count", count).Msg("bad_words_already_seeded")
		return nil
	}

	db.log.Info().Str("url", url).Msg("bad_words_download")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build bad words request: %w", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download bad words list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status code from bad words URL: %d", resp.StatusCode)
	}

	added, err := db.LoadBadWords(ctx, resp.Body)
	if err != nil {
		return err
	}
	db.log.Info().Int("count", added).Msg("bad_words_seeded")
	return nil
}

// LoadBadWords inserts one word per line from r and returns how many were added.
func (db *DB) LoadBadWords(ctx context.Context, r io.Reader) (int, error) {
	added := 0
	err := db.InTx(ctx, func(tx DBTX) error {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			word := strings.TrimSpace(strings.ToLower(scanner.Text()))
			if word == "" {
				continue
			}
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM bad_words WHERE word = ?", word).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check bad word: %w", err)
			}
			if exists > 0 {
				continue
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO bad_words (word) VALUES (?)", word); err != nil {
				return fmt.Errorf("failed to insert bad word: %w", err)
			}
			added++
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("error reading bad words: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// IsBadWord checks if a word is in the bad words list
func (db *DB) IsBadWord(ctx context.Context, word string) (bool, error) {
	cleanWord := strings.TrimSpace(strings.ToLower(word))

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bad_words WHERE word = ?", cleanWord).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check bad word: %w", err)
	}
	if count > 0 {
		db.log.Info().Str("word", word).Msg("bad_word_detected")
	}
	return count > 0, nil
}

// ValidateWords checks a list of words against the bad words filter
// Returns the list of bad words found
func (db *DB) ValidateWords(ctx context.Context, words []string) ([]string, error) {
	var badWords []string
	for _, word := range words {
		isBad, err := db.IsBadWord(ctx, word)
		if err != nil {
			return nil, err
		}
		if isBad {
			badWords = append(badWords, word)
		}
	}
	return badWords, nil
}

// ContainsBadWord reports whether any word of a display name is filtered.
func (db *DB) ContainsBadWord(ctx context.Context, text string) (bool, error) {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	bad, err := db.ValidateWords(ctx, words)
	if err != nil {
		return false, err
	}
	return len(bad) > 0, nil
}
