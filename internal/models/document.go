package models

// Document is the normalized result of one OCR call.
type Document struct {
	SessionID    string        `json:"sessionId"`
	Text         string        `json:"text"`
	RawText      string        `json:"rawText"`
	Pages        []Page        `json:"pages"`
	Images       []ImageRef    `json:"images"`
	StoredAssets []StoredAsset `json:"storedAssets"`
	Usage        Usage         `json:"usage"`
	Model        string        `json:"model"`
	Fallback     bool          `json:"fallback,omitempty"`
}

type Page struct {
	Index       int        `json:"index"`
	Markdown    string     `json:"markdown"`
	RawMarkdown string     `json:"rawMarkdown"`
	Images      []ImageRef `json:"images"`
	Dimensions  Dimensions `json:"dimensions"`
	HTML        string     `json:"html,omitempty"`
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	DPI    int `json:"dpi"`
}

// ImageRef locates one image on its page. Coordinates are fractions of the
// page size and are not clamped to [0,1].
type ImageRef struct {
	ID                  string              `json:"id"`
	URL                 string              `json:"url"`
	Coordinates         Coordinates         `json:"coordinates"`
	OriginalCoordinates OriginalCoordinates `json:"originalCoordinates"`
}

type Coordinates struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type OriginalCoordinates struct {
	TopLeftX     int `json:"top_left_x"`
	TopLeftY     int `json:"top_left_y"`
	BottomRightX int `json:"bottom_right_x"`
	BottomRightY int `json:"bottom_right_y"`
}

// StoredAsset is an image persisted for a session.
type StoredAsset struct {
	ID         string `json:"id"`
	OriginalID string `json:"originalId"`
	URL        string `json:"url"`
	MimeType   string `json:"mimeType"`
}

type Usage struct {
	PagesProcessed int `json:"pages_processed"`
	DocSizeBytes   int `json:"doc_size_bytes"`
}
