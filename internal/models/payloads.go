package models

// These structs define the JSON payloads exchanged between the HTTP
// functions and their clients.

// UploadResponse is returned by the upload function once the file is
// stored and the OCR job has been submitted.
type UploadResponse struct {
	DocID   string `json:"doc_id"`
	Message string `json:"message"`
}

// ProcessResponse is returned by the process function after OCR results
// have been aggregated and indexed.
type ProcessResponse struct {
	OK    bool `json:"ok"`
	Pages int  `json:"pages"`
}

// Source points a query answer back at one page of a viewable file.
type Source struct {
	Page      int    `json:"page"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet"`
	Relevance int    `json:"relevance"`
}

// AskResponse is the always-200 answer envelope for the ask function.
type AskResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// HealthResponse is the liveness probe payload.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse carries a stable machine-readable code alongside a
// human-readable message.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
