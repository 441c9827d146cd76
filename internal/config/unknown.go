package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

const usersSection = "users"

// accountKeys are the valid keys of [admin] and every [users.<actor>] table.
var accountKeys = []string{"password", "username"}

// knownSectionKeys lists the valid keys of each fixed section. Lists are
// sorted for deterministic suggestions when two candidates tie.
var knownSectionKeys = map[string][]string{
	"server": {
		"base_url", "dav_path", "encode_paths", "graph_root", "infinite_depth",
		"legacy_dav_root", "new_dav_root", "unicode_normalization",
	},
	"poll":    {"delay", "max_attempts"},
	"network": {"max_requests_per_second", "request_timeout", "user_agent"},
	"upload":  {"chunk_size", "protocol"},
	"logging": {"log_format", "log_level"},
	"state":   {"state_file"},
	"admin":   accountKeys,
}

// knownSections is the sorted list of valid top-level tables.
var knownSections = func() []string {
	names := make([]string, 0, len(knownSectionKeys)+1)
	for name := range knownSectionKeys {
		names = append(names, name)
	}

	names = append(names, usersSection)
	sort.Strings(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key. An
// unknown table is reported once, not once per key inside it.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	reported := make(map[string]bool)

	for _, key := range undecoded {
		err := unknownKeyError(key)
		if err == nil || reported[err.Error()] {
			continue
		}

		reported[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	if len(key) == 0 {
		return nil
	}

	section := key[0]

	if len(key) == 1 {
		if owner := sectionOf(section); owner != "" {
			return fmt.Errorf("config key %q belongs in the [%s] section", section, owner)
		}
	}

	if section == usersSection {
		if len(key) < 3 {
			return fmt.Errorf("[users] entries must be tables like [users.alice], got %q", key.String())
		}

		return keyError(key[2], "users."+key[1], accountKeys)
	}

	fields, ok := knownSectionKeys[section]
	if !ok {
		if suggestion := closestMatch(section, knownSections); suggestion != "" {
			return fmt.Errorf("unknown config section [%s], did you mean [%s]?", section, suggestion)
		}

		return fmt.Errorf("unknown config section [%s]", section)
	}

	if len(key) < 2 {
		return nil
	}

	return keyError(key[1], section, fields)
}

func keyError(field, section string, known []string) error {
	if suggestion := closestMatch(field, known); suggestion != "" {
		return fmt.Errorf("unknown key %q in [%s], did you mean %q?", field, section, suggestion)
	}

	return fmt.Errorf("unknown key %q in [%s]", field, section)
}

// sectionOf returns the section that defines field, or "" if none does.
func sectionOf(field string) string {
	for _, section := range knownSections {
		for _, k := range knownSectionKeys[section] {
			if k == field && section != "admin" {
				return section
			}
		}
	}

	return ""
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings using a
// single reusable row pair.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
