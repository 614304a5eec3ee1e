package console

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter types accepted by NewOutputFilter.
const (
	FilterNone   = "none"
	FilterErrors = "errors"
	FilterSearch = "search"
	FilterRegex  = "regex"
)

// OutputFilter filters console output based on criteria
type OutputFilter struct {
	FilterType    string
	Pattern       string
	CaseSensitive bool
	regex         *regexp.Regexp
}

// FilterResult represents the result of filtering a line
type FilterResult struct {
	Include   bool
	Highlight []int // Start/end positions of matches for highlighting
}

var errorKeywords = []string{
	"error",
	"exception",
	"fatal",
	"warning",
	"warn",
	"failed",
	"failure",
	"critical",
	"panic",
	"stack trace",
	"traceback",
}

// NewOutputFilter creates a new output filter. An empty type means none.
func NewOutputFilter(filterType, pattern string, caseSensitive bool) (*OutputFilter, error) {
	filterType = strings.ToLower(strings.TrimSpace(filterType))
	if filterType == "" {
		filterType = FilterNone
	}

	filter := &OutputFilter{
		FilterType:    filterType,
		Pattern:       pattern,
		CaseSensitive: caseSensitive,
	}

	switch filterType {
	case FilterNone, FilterErrors, FilterSearch:
	case FilterRegex:
		if pattern != "" {
			flags := ""
			if !caseSensitive {
				flags = "(?i)"
			}
			compiled, err := regexp.Compile(flags + pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			filter.regex = compiled
		}
	default:
		return nil, fmt.Errorf("unknown filter type %q", filterType)
	}

	return filter, nil
}

// Filter applies the filter to a line of output
func (f *OutputFilter) Filter(line string) FilterResult {
	result := FilterResult{
		Include:   true,
		Highlight: []int{},
	}

	switch f.FilterType {
	case FilterErrors:
		lowerLine := strings.ToLower(line)
		result.Include = false
		for _, keyword := range errorKeywords {
			if idx := strings.Index(lowerLine, keyword); idx >= 0 {
				result.Include = true
				result.Highlight = []int{idx, idx + len(keyword)}
				break
			}
		}
		return result

	case FilterSearch:
		if f.Pattern == "" {
			return result
		}

		searchLine := line
		searchPattern := f.Pattern
		if !f.CaseSensitive {
			searchLine = strings.ToLower(line)
			searchPattern = strings.ToLower(f.Pattern)
		}

		if idx := strings.Index(searchLine, searchPattern); idx >= 0 {
			result.Highlight = []int{idx, idx + len(f.Pattern)}
		} else {
			result.Include = false
		}
		return result

	case FilterRegex:
		if f.regex == nil {
			return result
		}

		if match := f.regex.FindStringIndex(line); match != nil {
			result.Highlight = match
		} else {
			result.Include = false
		}
		return result

	default:
		return result
	}
}

// FilterLines applies the filter to multiple lines
func (f *OutputFilter) FilterLines(lines []string) []string {
	if f.FilterType == FilterNone {
		return lines
	}

	filtered := []string{}
	for _, line := range lines {
		if f.Filter(line).Include {
			filtered = append(filtered, line)
		}
	}
	return filtered
}
