package ocr

// samplePNG is a 1x1 PNG, enough for the sample document to exercise image storage.
const samplePNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

const sampleMarkdown = `# Sample Document

This is a sample document returned when no real OCR result is available.
It shows how extracted text and images are laid out on a page.

## Section 1

Lorem ipsum dolor sit amet, consectetur adipiscing elit. Integer nec odio.
Praesent libero. Sed cursus ante dapibus diam.

![img-0.png](img-0.png)

## Section 2

| Item | Value |
|------|-------|
| Pages | 1 |
| Images | 1 |
`

// SampleResponse returns the canned OCR response used for sample requests and
// as the fallback when the OCR call fails.
func SampleResponse() *Response {
	size := len(sampleMarkdown)
	return &Response{
		Model: DefaultModel,
		Pages: []Page{
			{
				Index:    0,
				Markdown: sampleMarkdown,
				Images: []Image{
					{
						ID:           "img-0.png",
						TopLeftX:     153,
						TopLeftY:     316,
						BottomRightX: 459,
						BottomRightY: 514,
						ImageBase64:  samplePNG,
					},
				},
				Dimensions: Dimensions{DPI: 72, Width: 612, Height: 792},
			},
		},
		UsageInfo: UsageInfo{
			PagesProcessed: 1,
			DocSizeBytes:   &size,
		},
	}
}
