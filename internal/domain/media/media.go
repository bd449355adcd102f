// Package media provides filename cleanup helpers for media files. Release
// filenames carry resolution, source, codec and group tags that have to be
// stripped before a title is searchable or presentable.
package media

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultDisplayLength is the truncation limit for display names.
const DefaultDisplayLength = 50

// yearRe matches the first year-like run in a release name. Titles put the
// year right after the name, so everything following it is tag noise.
var yearRe = regexp.MustCompile(`\.?\d{4}`)

// searchDelimiters split the title from trailing edition or episode text.
var searchDelimiters = []string{" - ", ".-.", ".-", "-."}

// searchPatterns are applied in order after dots become spaces.
var searchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[.*?\]|\(.*?\)`),
	regexp.MustCompile(`(?i)\.(?:mkv|avi|mp4|mov)$`),
	regexp.MustCompile(`(?i)(?:480|720|1080|2160)p?`),
	regexp.MustCompile(`(?i)bluray|brrip|bdrip|webrip|web-?dl|dvdrip|hdtv`),
	regexp.MustCompile(`(?i)(?:x|h)\.?26[45]|xvid|hevc`),
	regexp.MustCompile(`(?i)DD(?:P)?5\.?1|DTS(?:-HD)?|AAC(?:\d\.?\d)?|DDP\d\.?\d|ATMOS|TrueHD|OPUS`),
	regexp.MustCompile(`(?i)REPACK|PROPER|EXTENDED|THEATRICAL|DIRECTOR'?S\.?CUT`),
	regexp.MustCompile(`(?i)HDR\d*|DV|DOLBY\.?VISION|SDR`),
	regexp.MustCompile(`(?i)IMAX`),
	regexp.MustCompile(`(?i)AMZN|DSNP|NF|HULU|HBO|DSNY|ATVP`),
	regexp.MustCompile(`-\w+$`),
	regexp.MustCompile(`\b\d{4}\b`),
}

// displayYearRe finds a plausible release year to preserve in display names.
var displayYearRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

var displayPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s*\([^)]*\)\s*`),
	regexp.MustCompile(`(?i)\b\d{3,4}p\b`),
	regexp.MustCompile(`(?i)AMZN|DSNP|NF|HULU|HBO|DSNY|ATVP`),
	regexp.MustCompile(`(?i)WEB-?DL|BluRay|BRRip|HDRip|DVDRip`),
	regexp.MustCompile(`(?i)DDP\d\.\d|DD\d\.\d|AAC\d\.\d|AAC2\.0|DDP[0-9]`),
	regexp.MustCompile(`(?i)H\.?264|x264|HEVC|[Hh]265`),
	regexp.MustCompile(`-\w+$`),
	regexp.MustCompile(`\s+\d+\s+\d+\s+\d+`),
}

// CleanMovieTitle reduces a release filename to a searchable movie title.
func CleanMovieTitle(filename string) string {
	title := stripExtension(filepath.Base(filename))

	// Everything after the year is tag noise.
	if loc := yearRe.FindStringIndex(title); loc != nil {
		title = title[:loc[0]]
	}

	for _, delimiter := range searchDelimiters {
		if idx := strings.Index(title, delimiter); idx >= 0 {
			title = title[:idx]
		}
	}

	title = strings.ReplaceAll(title, ".", " ")
	title = strings.ReplaceAll(title, "_", " ")

	for _, pattern := range searchPatterns {
		title = pattern.ReplaceAllString(title, "")
	}

	// Single-letter leftovers are stray tag fragments, not words.
	var words []string
	for _, word := range strings.Fields(title) {
		if len(word) > 1 {
			words = append(words, word)
		}
	}
	return strings.Join(words, " ")
}

// CleanFilenameForDisplay produces a human-friendly name for announcements,
// keeping the release year when one is present.
func CleanFilenameForDisplay(filename string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultDisplayLength
	}

	name := stripExtension(filepath.Base(filename))
	name = strings.ReplaceAll(name, ".", " ")
	name = strings.ReplaceAll(name, "_", " ")

	year := ""
	if loc := displayYearRe.FindStringIndex(name); loc != nil {
		year = name[loc[0]:loc[1]]
		name = name[:loc[0]] + name[loc[1]:]
	}

	for _, pattern := range displayPatterns {
		name = pattern.ReplaceAllString(name, "")
	}

	name = strings.Join(strings.Fields(name), " ")

	if year != "" {
		name = fmt.Sprintf("%s (%s)", name, year)
	}

	// Truncate on runes so multibyte titles stay valid UTF-8.
	if runes := []rune(name); len(runes) > maxLength {
		name = string(runes[:maxLength-3]) + "..."
	}
	return name
}

// MediaIcon returns the icon matching a file's media type.
func MediaIcon(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".mkv", ".avi", ".mov":
		return "🎬"
	case ".mp3", ".wav", ".flac", ".m4a":
		return "🎵"
	}
	return "📄"
}

// IsVideoFile reports whether the filename has a playable video extension.
func IsVideoFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".mkv", ".avi", ".mov", ".m4v", ".webm":
		return true
	}
	return false
}

// FormatTime renders a duration in seconds as HH:MM:SS.
func FormatTime(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

func stripExtension(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
