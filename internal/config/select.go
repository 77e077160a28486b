package config

import (
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/chmdznr/pcsync/pkg/models"
)

// AllFlag selects every configured file type.
const AllFlag = "all"

// Selection is the result of matching download flags against the field table.
type Selection struct {
	Specs    []models.FileTypeSpec
	Ignored  []string
	Accepted []string
}

// Flags returns the distinct download flags in table order.
func Flags(specs []models.FileTypeSpec) []string {
	seen := map[string]bool{}
	var flags []string
	for _, s := range specs {
		if !seen[s.Flag] {
			seen[s.Flag] = true
			flags = append(flags, s.Flag)
		}
	}
	return flags
}

// Select picks the file types named by tokens. Unknown tokens are returned
// in Ignored. When tokens were given but none is configured, Select fails
// with ErrConfig.
func Select(specs []models.FileTypeSpec, tokens []string) (*Selection, error) {
	for _, tok := range tokens {
		if strings.EqualFold(tok, AllFlag) {
			return &Selection{Specs: specs, Accepted: Flags(specs)}, nil
		}
	}

	acceptable := map[string]bool{}
	for _, f := range Flags(specs) {
		acceptable[f] = true
	}

	sel := &Selection{}
	wanted := map[string]bool{}
	for _, tok := range tokens {
		if acceptable[tok] {
			if !wanted[tok] {
				sel.Accepted = append(sel.Accepted, tok)
			}
			wanted[tok] = true
		} else {
			sel.Ignored = append(sel.Ignored, tok)
		}
	}

	if len(tokens) > 0 && len(sel.Accepted) == 0 {
		flags := Flags(specs)
		sort.Strings(flags)
		return sel, goerr.Wrap(models.ErrConfig, "no acceptable download flags provided",
			goerr.V("acceptable", strings.Join(flags, ", ")),
			goerr.V("given", strings.Join(tokens, ", ")))
	}

	for _, s := range specs {
		if wanted[s.Flag] {
			sel.Specs = append(sel.Specs, s)
		}
	}
	return sel, nil
}
