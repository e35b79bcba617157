package vision

import "context"

// Request carries one image to the external field-extraction capability. The
// payload is opaque to the core: either a URL or inline bytes.
type Request struct {
	ImageURL  string
	ImageData []byte
	Hint      string
}

// Record is the structured result of one extraction.
type Record struct {
	Fields    map[string]string `json:"fields"`
	ItemCount int               `json:"item_count"`
}

// Extractor is the opaque external inference capability. The core only needs
// admit, call, release; everything else about the call is the provider's
// business.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Record, error)
}
