package ocr

// Request is the body of a Mistral OCR call.
type Request struct {
	Model              string      `json:"model"`
	Document           DocumentURL `json:"document"`
	IncludeImageBase64 bool        `json:"include_image_base64"`
}

// DocumentURL wraps the document location, either a data URL or a fetchable URL.
type DocumentURL struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

// Response is the OCR API's answer for a whole document.
type Response struct {
	Pages     []Page    `json:"pages"`
	Model     string    `json:"model"`
	UsageInfo UsageInfo `json:"usage_info"`
}

type UsageInfo struct {
	PagesProcessed int  `json:"pages_processed"`
	DocSizeBytes   *int `json:"doc_size_bytes"`
}

// Page is a single page in the OCR response.
type Page struct {
	Index      int        `json:"index"`
	Markdown   string     `json:"markdown"`
	Images     []Image    `json:"images"`
	Dimensions Dimensions `json:"dimensions"`
}

// Dimensions may be all zero when the vendor omits them.
type Dimensions struct {
	DPI    int `json:"dpi"`
	Height int `json:"height"`
	Width  int `json:"width"`
}

// Image is an extracted image; ImageBase64 is a data URL or bare base64 and may be empty.
type Image struct {
	ID           string `json:"id"`
	TopLeftX     int    `json:"top_left_x"`
	TopLeftY     int    `json:"top_left_y"`
	BottomRightX int    `json:"bottom_right_x"`
	BottomRightY int    `json:"bottom_right_y"`
	ImageBase64  string `json:"image_base64"`
}

// uploadResponse is returned by the files endpoint.
type uploadResponse struct {
	ID       string `json:"id"`
	Object   string `json:"object"`
	Filename string `json:"filename"`
	Purpose  string `json:"purpose"`
}

type signedURLResponse struct {
	URL string `json:"url"`
}
