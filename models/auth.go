package models

// AuthContext identifies the caller of a request once its API key is resolved
type AuthContext struct {
	APIKeyID     string   `json:"api_key_id"`
	TenantID     string   `json:"tenant_id"`
	ProjectID    string   `json:"project_id"`
	APIKeyPrefix string   `json:"api_key_prefix"`
	Tags         []string `json:"tags,omitempty"`
}
