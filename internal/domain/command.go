package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// JSON returns the command as strict JSON, preserving key order for the text form.
func (c Command) JSON() ([]byte, error) {
	if c.Text != "" {
		out := quoteBareKeys(c.Text)
		if !json.Valid(out) {
			return nil, fmt.Errorf("command is not a valid JSON document: %s", c.Text)
		}
		return out, nil
	}
	if len(c.Doc) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	// A decoded mapping has no order; a single-key command is unambiguous.
	keys := c.Doc.sortedKeys()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(c.Doc[k])
		if err != nil {
			return nil, fmt.Errorf("command field %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// quoteBareKeys quotes the unquoted object keys of shell-style JSON such as
// {ping:1}. String literals are copied through untouched.
func quoteBareKeys(text string) []byte {
	if json.Valid([]byte(text)) {
		return []byte(text)
	}
	out := make([]byte, 0, len(text)+16)
	keyPos := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch == '"':
			end := stringEnd(text, i)
			out = append(out, text[i:end]...)
			i = end - 1
			keyPos = false
		case ch == '{' || ch == ',':
			out = append(out, ch)
			keyPos = true
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			out = append(out, ch)
		case keyPos && isKeyStart(ch):
			end := i + 1
			for end < len(text) && isKeyPart(text[end]) {
				end++
			}
			next := end
			for next < len(text) && (text[next] == ' ' || text[next] == '\t') {
				next++
			}
			if next < len(text) && text[next] == ':' {
				out = append(out, '"')
				out = append(out, text[i:end]...)
				out = append(out, '"')
			} else {
				out = append(out, text[i:end]...)
			}
			i = end - 1
			keyPos = false
		default:
			out = append(out, ch)
			keyPos = false
		}
	}
	return out
}

// stringEnd returns the index just past the string literal opening at start.
func stringEnd(text string, start int) int {
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(text)
}

func isKeyStart(ch byte) bool {
	return ch == '_' || ch == '$' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isKeyPart(ch byte) bool {
	return isKeyStart(ch) || (ch >= '0' && ch <= '9')
}

// Name returns the command name, which is the first key of the document.
func (c Command) Name() (string, error) {
	raw, err := c.JSON()
	if err != nil {
		return "", err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", fmt.Errorf("command must be a JSON object")
	}
	tok, err = dec.Token()
	if err != nil {
		return "", err
	}
	name, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("command is empty")
	}
	return name, nil
}

// Decode returns the command as an unordered document.
func (c Command) Decode() (Document, error) {
	if c.Text == "" {
		return c.Doc, nil
	}
	raw, err := c.JSON()
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("command must be a JSON object: %w", err)
	}
	return doc, nil
}

// sortedKeys returns the keys in a stable order, keeping a key named like a
// known command first.
func (d Document) sortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sort.SliceStable(keys, func(i, j int) bool {
		return knownCommands[keys[i]] && !knownCommands[keys[j]]
	})
	return keys
}

var knownCommands = map[string]bool{
	"ping": true, "buildInfo": true, "buildinfo": true, "serverStatus": true,
	"count": true, "collStats": true, "dbStats": true, "drop": true,
	"create": true, "listCollections": true, "distinct": true, "isMaster": true,
	"hello": true, "getLastError": true, "validate": true, "listIndexes": true,
}
