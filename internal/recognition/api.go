package recognition

// apiResponse models the envelope returned by the recognition service.
type apiResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type imageRequest struct {
	Image string `json:"image"` // base64, no data URL prefix
}

type plateData struct {
	Text string `json:"text"`
}

type faceData struct {
	Embedding []float64 `json:"embedding"`
}
