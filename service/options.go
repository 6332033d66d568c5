package service

import (
	"sort"
	"strings"

	"github.com/AnTengye/solarflow/model"
)

// LoadOptions reads one column below the header rows and returns the
// non-blank values in source order. Duplicates are kept.
func LoadOptions(rows [][]any, column, headerRows int) []string {
	options := []string{}
	for i, row := range rows {
		if i < headerRows {
			continue
		}
		v := cellAt(row, column)
		if IsEmpty(v) {
			continue
		}
		options = append(options, strings.TrimSpace(CellString(v)))
	}
	return options
}

// LoadOptionSet applies an option set's policy on top of LoadOptions.
func LoadOptionSet(rows [][]any, set model.OptionSet) []string {
	options := LoadOptions(rows, set.Column, set.HeaderRows)
	if !set.Dedupe {
		return options
	}

	seen := make(map[string]bool, len(options))
	unique := options[:0]
	for _, o := range options {
		if seen[o] {
			continue
		}
		seen[o] = true
		unique = append(unique, o)
	}
	sort.Strings(unique)
	return unique
}
