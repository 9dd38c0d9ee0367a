package models

import (
	"strings"

	"golang.org/x/text/cases"
)

// NameKey folds a display name into the key used for case-insensitive
// uniqueness of step, team and flow names.
func NameKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
