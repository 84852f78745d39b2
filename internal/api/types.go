package api

// LoraEntry is one registry listing row.
type LoraEntry struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
}

// ListResponse is the body of GET /v1/loras.
type ListResponse struct {
	Dir   string      `json:"dir"`
	Loras []LoraEntry `json:"loras"`
}

// InspectResponse is the body of GET /v1/loras/:name.
type InspectResponse struct {
	Name         string         `json:"name"`
	Path         string         `json:"path"`
	Format       string         `json:"format"`
	Keys         int            `json:"keys"`
	BlockKeys    map[string]int `json:"block_keys"`
	AlphaModules int            `json:"alpha_modules"`
}

// ApplyRequest is the body of POST /v1/apply.
type ApplyRequest struct {
	Model      string   `json:"model"`
	Lora       string   `json:"lora"`
	Strength   *float64 `json:"strength"`
	BlocksType string   `json:"blocks_type"`
	Output     string   `json:"output"`
}

// ApplyResponse reports one completed apply job.
type ApplyResponse struct {
	ID          string  `json:"id"`
	Model       string  `json:"model"`
	Lora        string  `json:"lora"`
	Strength    float64 `json:"strength"`
	BlocksType  string  `json:"blocks_type"`
	Output      string  `json:"output"`
	Applied     int     `json:"applied"`
	Skipped     int     `json:"skipped"`
	Changed     bool    `json:"changed"`
	Fingerprint string  `json:"fingerprint"`
}

// ErrorBody is the error envelope shared by all endpoints.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}
