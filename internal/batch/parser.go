package batch

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrNoPosts = errors.New("no posts found in file")

// Item is one post in a batch.
type Item struct {
	Index    int
	Topic    string
	Prompt   string
	Caption  string
	Hashtags []string
}

// Label is the text shown for the item in progress output.
func (i Item) Label() string {
	if i.Prompt != "" {
		return i.Prompt
	}
	return i.Topic
}

type jsonItem struct {
	Topic    string   `json:"topic"`
	Prompt   string   `json:"prompt"`
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags"`
}

// ParseFile picks the parser from the extension: .json, or .txt and
// extensionless files as text.
func ParseFile(path string) ([]Item, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var parse func(io.Reader) ([]Item, error)
	switch ext {
	case ".json":
		parse = ParseJSON
	case ".txt", "":
		parse = ParseText
	default:
		return nil, fmt.Errorf("unsupported batch file %q: use .txt or .json", ext)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch file: %w", err)
	}
	defer file.Close()

	items, err := parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return items, nil
}

// ParseText reads one topic per line. Trailing words starting with '#' are
// the post's extra hashtags. Blank lines and lines starting with '#' are
// skipped.
func ParseText(r io.Reader) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(r)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		words := strings.Fields(line)
		cut := len(words)
		for cut > 0 && strings.HasPrefix(words[cut-1], "#") {
			cut--
		}
		if cut == 0 {
			return nil, fmt.Errorf("line %d: hashtags without a topic", lineNo)
		}

		item := Item{Index: len(items) + 1, Topic: strings.Join(words[:cut], " ")}
		for _, tag := range words[cut:] {
			if tag = strings.TrimLeft(tag, "#"); tag != "" {
				item.Hashtags = append(item.Hashtags, tag)
			}
		}
		items = append(items, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoPosts
	}
	return items, nil
}

// ParseJSON reads an array of posts, or an object holding it under "posts".
// Every post needs a topic or a prompt.
func ParseJSON(r io.Reader) ([]Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	var posts []jsonItem
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Posts []jsonItem `json:"posts"`
		}
		err = json.Unmarshal(trimmed, &wrapper)
		posts = wrapper.Posts
	} else {
		err = json.Unmarshal(data, &posts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if len(posts) == 0 {
		return nil, ErrNoPosts
	}

	items := make([]Item, 0, len(posts))
	for i, p := range posts {
		item := Item{
			Index:    i + 1,
			Topic:    strings.TrimSpace(p.Topic),
			Prompt:   strings.TrimSpace(p.Prompt),
			Caption:  strings.TrimSpace(p.Caption),
			Hashtags: p.Hashtags,
		}
		if item.Topic == "" && item.Prompt == "" {
			return nil, fmt.Errorf("post %d needs a topic or a prompt", i+1)
		}
		items = append(items, item)
	}
	return items, nil
}
