// Package templates embeds the starter configurations written by hotpush init.
// The first comment line of each file is its description.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

//go:embed *.yaml
var files embed.FS

// ErrUnknown is returned by Get for a name with no embedded template.
var ErrUnknown = errors.New("unknown template")

// Template is a starter configuration file. Content is unexpanded.
type Template struct {
	Name        string
	Description string
	Content     []byte
}

// All returns every embedded template ordered by name.
func All() []*Template {
	entries, _ := files.ReadDir(".")
	var all []*Template
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".yaml")
		if !ok || entry.IsDir() {
			continue
		}
		if tmpl, err := Get(name); err == nil {
			all = append(all, tmpl)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Names returns the template names ordered alphabetically.
func Names() []string {
	var names []string
	for _, tmpl := range All() {
		names = append(names, tmpl.Name)
	}
	return names
}

// Get returns the template called name.
func Get(name string) (*Template, error) {
	if name == "" || path.Base(name) != name {
		return nil, fmt.Errorf("%w %q", ErrUnknown, name)
	}
	content, err := files.ReadFile(name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknown, name)
	}
	return &Template{Name: name, Description: description(content), Content: content}, nil
}

func description(content []byte) string {
	line, _, _ := bytes.Cut(content, []byte("\n"))
	desc, ok := bytes.CutPrefix(bytes.TrimSpace(line), []byte("#"))
	if !ok {
		return ""
	}
	return string(bytes.TrimSpace(desc))
}
