// Package sidecar reads and writes the plain-text metadata file that rides
// next to a staged video: title, topic tags, product link, and product short
// title, one per line in fixed order.
package sidecar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/width"
)

// ShortTitleMax caps the product short title length, in runes.
const ShortTitleMax = 10

// Meta is the parsed sidecar content. Two populated lines mean no product
// attachment; four mean attachment is attempted.
type Meta struct {
	Title             string
	Topics            []string
	ProductLink       string
	ProductShortTitle string
}

// PathFor returns the sidecar path for a staged video file.
func PathFor(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + ".txt"
}

// Write materializes the sidecar next to the staged video. The topics line is
// normalized and the short title clipped to its platform limit.
func Write(videoPath, title, topics, productLink, shortTitle string) (string, error) {
	path := PathFor(videoPath)
	lines := []string{
		strings.TrimSpace(title),
		strings.Join(NormalizeTopics(topics), ","),
		strings.TrimSpace(productLink),
		ClipShortTitle(shortTitle),
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return "", fmt.Errorf("write sidecar: %w", err)
	}
	return path, nil
}

// Load parses a sidecar file. A missing file yields an empty Meta and no
// error so callers can fall back to CLI flags.
func Load(path string) (Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, nil
		}
		return Meta{}, fmt.Errorf("read sidecar: %w", err)
	}

	var meta Meta
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch i {
		case 0:
			meta.Title = line
		case 1:
			meta.Topics = NormalizeTopics(line)
		case 2:
			meta.ProductLink = line
		case 3:
			meta.ProductShortTitle = ClipShortTitle(line)
		}
	}
	return meta, nil
}

// NormalizeTopics splits a free-form topic cell into an ordered, deduplicated
// tag list. Full-width punctuation is folded to ASCII first so 旅游，美食 and
// #旅游 #美食 both parse.
func NormalizeTopics(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	folded := width.Narrow.String(value)
	folded = strings.ReplaceAll(folded, "、", ",")
	folded = strings.ReplaceAll(folded, "#", ",")
	folded = strings.NewReplacer("\t", ",", " ", ",", "　", ",").Replace(folded)

	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(folded, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := seen[part]; ok {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

// ClipShortTitle trims and caps a product short title at the platform limit.
func ClipShortTitle(value string) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) > ShortTitleMax {
		runes = runes[:ShortTitleMax]
	}
	return string(runes)
}
