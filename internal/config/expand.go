package config

import (
	"os"
	"regexp"
	"sort"
)

// envRef matches ${VAR} and ${VAR:-default}.
var envRef = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references in content. An
// empty variable takes the default when one is given.
func ExpandEnv(content []byte) []byte {
	return envRef.ReplaceAllFunc(content, func(match []byte) []byte {
		parts := envRef.FindSubmatch(match)
		value := os.Getenv(string(parts[1]))
		if value == "" && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// EnvReferences returns the variable names content refers to, sorted and
// without duplicates.
func EnvReferences(content []byte) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range envRef.FindAllSubmatch(content, -1) {
		name := string(m[1])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
