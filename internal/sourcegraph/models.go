package sourcegraph

// RawResult is one search result as returned by the GraphQL API.
// Only FileMatch results carry content; other result kinds decode to a
// zero Repository and are skipped during formatting.
type RawResult struct {
	TypeName   string `json:"__typename"`
	Repository struct {
		Name string `json:"name"`
	} `json:"repository"`
	File struct {
		Path string `json:"path"`
		URL  string `json:"url"`
	} `json:"file"`
	LineMatches []LineMatch `json:"lineMatches"`
}

// LineMatch is one matching line within a file.
type LineMatch struct {
	Preview    string `json:"preview"`
	LineNumber int    `json:"lineNumber"`
}

// FormattedResult is the caller-visible shape of one match.
type FormattedResult struct {
	Repository string `json:"repository"`
	Path       string `json:"path"`
	LineNumber int    `json:"line_number"`
	Preview    string `json:"preview"`
	URL        string `json:"url"`
}

// FormatResults flattens raw file matches into one entry per matching line,
// preserving backend order and truncating to limit. A file match without
// line matches (e.g. a path-only match) yields a single entry for the file.
func FormatResults(raw []RawResult, limit int) []FormattedResult {
	formatted := []FormattedResult{}
	for _, r := range raw {
		if r.TypeName != "" && r.TypeName != "FileMatch" {
			continue
		}
		if len(r.LineMatches) == 0 {
			formatted = append(formatted, FormattedResult{
				Repository: r.Repository.Name,
				Path:       r.File.Path,
				URL:        r.File.URL,
			})
		}
		for _, lm := range r.LineMatches {
			formatted = append(formatted, FormattedResult{
				Repository: r.Repository.Name,
				Path:       r.File.Path,
				LineNumber: lm.LineNumber,
				Preview:    lm.Preview,
				URL:        r.File.URL,
			})
		}
		if len(formatted) >= limit {
			return formatted[:limit]
		}
	}
	return formatted
}
