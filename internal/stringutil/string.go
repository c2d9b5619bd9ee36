/*
Copyright (c) 2025 jupyter-infra
Distributed under the terms of the MIT license
*/

// Package stringutil provides string utility functions.
package stringutil

import (
	"encoding/json"
	"regexp"
	"strings"
)

var nonNameChars = regexp.MustCompile(`[^a-zA-Z0-9=]`)

// SanitizeUsername escapes a username for safe inclusion in logs and JSON strings
func SanitizeUsername(username string) string {
	escaped, _ := json.Marshal(username)
	return string(escaped[1 : len(escaped)-1])
}

// NormalizeUsername replaces every character other than letters, digits and
// '=' with '-', e.g. "jane.doe@example.com" becomes "jane-doe-example-com"
func NormalizeUsername(username string) string {
	return nonNameChars.ReplaceAllString(username, "-")
}

// SplitList splits a comma separated setting, dropping blanks
func SplitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
