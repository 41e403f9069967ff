// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The widget records a whole utterance in the browser and uploads it once the
// user taps stop, so the interface is batch shaped: one encoded recording in,
// one transcript out. Providers report the detected language as an ISO 639-1
// code so the reply can be written in the language the user spoke.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"strings"

	"github.com/MrWong99/voxwidget/pkg/audio"
)

// Transcript is the result of a transcription.
type Transcript struct {
	// Text is the recognised text. It may be empty when the recording held no
	// speech.
	Text string

	// Language is the detected ISO 639-1 code (e.g. "en"), or "" if unknown.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts a finished recording to text. language is an
	// optional ISO 639-1 hint; empty lets the backend detect it.
	Transcribe(ctx context.Context, blob audio.Blob, language string) (*Transcript, error)
}

// languageNames maps the English language names some backends return (OpenAI
// verbose_json reports "english", "portuguese", ...) to ISO 639-1 codes.
var languageNames = map[string]string{
	"portuguese": "pt",
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"dutch":      "nl",
	"russian":    "ru",
	"chinese":    "zh",
	"japanese":   "ja",
	"korean":     "ko",
	"polish":     "pl",
	"swedish":    "sv",
	"turkish":    "tr",
	"ukrainian":  "uk",
	"catalan":    "ca",
}

// NormalizeLanguage turns a backend language label into a lower-case ISO
// 639-1 code. Region suffixes are dropped ("en-US" → "en"); unknown names are
// returned lower-cased.
func NormalizeLanguage(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	if l == "" {
		return ""
	}
	if code, ok := languageNames[l]; ok {
		return code
	}
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	return l
}
