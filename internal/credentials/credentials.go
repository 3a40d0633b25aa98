package credentials

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strconv"
)

// Session codes are six digit numbers in [100000, 999999].
const (
	SessionCodeLength = 6
	sessionCodeMin    = 100000
	sessionCodeSpan   = 900000
)

// ErrInvalidSessionCode is returned for codes that are not exactly six digits.
var ErrInvalidSessionCode = errors.New("session code must be exactly 6 digits")

// Word lists for generating kid-friendly reader names
var adjectives = []string{
	"happy", "sunny", "brave", "bright", "cool", "swift", "clever", "jolly",
	"mighty", "super", "star", "wild", "funny", "lucky", "magic", "bouncy",
	"cheerful", "daring", "eager", "flying", "gentle", "jazzy", "kindly",
	"lively", "merry", "noble", "perky", "quick", "snappy", "zippy", "cosmic",
}

var nouns = []string{
	"giraffe", "elephant", "bear", "tiger", "panda", "lion", "owl", "fox",
	"dolphin", "otter", "koala", "penguin", "rabbit", "turtle", "zebra", "puffin",
	"reader", "explorer", "captain", "wizard", "rocket", "comet", "dragon", "unicorn",
}

// GenerateSessionCode returns a random six digit session code.
func GenerateSessionCode() (string, error) {
	num, err := rand.Int(rand.Reader, big.NewInt(sessionCodeSpan))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(sessionCodeMin+num.Int64(), 10), nil
}

// ValidateSessionCode checks that code is exactly six ASCII digits.
func ValidateSessionCode(code string) error {
	if len(code) != SessionCodeLength {
		return ErrInvalidSessionCode
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return ErrInvalidSessionCode
		}
	}
	return nil
}

// GenerateReaderName generates a random name in the format "adjective-noun"
func GenerateReaderName() (string, error) {
	adjective, err := randomElement(adjectives)
	if err != nil {
		return "", err
	}

	noun, err := randomElement(nouns)
	if err != nil {
		return "", err
	}

	return adjective + "-" + noun, nil
}

// randomElement picks a random element from a string slice
func randomElement(slice []string) (string, error) {
	if len(slice) == 0 {
		return "", nil
	}

	num, err := rand.Int(rand.Reader, big.NewInt(int64(len(slice))))
	if err != nil {
		return "", err
	}

	return slice[num.Int64()], nil
}
