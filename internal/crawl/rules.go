package crawl

import "strings"

// Rules decides which listing links are downloaded.
type Rules struct {
	// Suffix every accepted href must end with.
	Suffix string
	// Include lists substrings; a name must contain at least one.
	Include []string
	// Exclude lists substrings; a name containing any is rejected.
	Exclude []string
}

// DefaultRules accepts the schedule and line-section files of the ANTT
// authorization dataset and skips the historical line-section dump.
func DefaultRules() Rules {
	return Rules{
		Suffix:  ".csv",
		Include: []string{"horarios_", "linhas_secoes"},
		Exclude: []string{"historico_linhas_secoes"},
	}
}

// Candidate reports whether href points at a file of interest, based on
// its suffix only.
func (r Rules) Candidate(href string) bool {
	return strings.HasSuffix(href, r.Suffix)
}

// Accept reports whether a candidate file name passes the include and
// exclude substrings.
func (r Rules) Accept(name string) bool {
	for _, ex := range r.Exclude {
		if strings.Contains(name, ex) {
			return false
		}
	}
	for _, in := range r.Include {
		if strings.Contains(name, in) {
			return true
		}
	}
	return false
}

// FileName returns the final path segment of href.
func FileName(href string) string {
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}
