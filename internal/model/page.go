package model

// WebPageResult is the outcome of fetching one page during a candidate crawl.
// It lives only for the duration of that candidate's pipeline.
type WebPageResult struct {
	URL     string `json:"url"`
	Depth   int    `json:"depth"`
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SuccessfulPages returns the pages that were fetched successfully, in order.
func SuccessfulPages(pages []WebPageResult) []WebPageResult {
	var out []WebPageResult
	for _, p := range pages {
		if p.Success {
			out = append(out, p)
		}
	}
	return out
}
