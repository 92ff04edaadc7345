package auth

// Environment names which vendor deployment a credential targets.
const (
	EnvironmentProduction = "production"
	EnvironmentSandbox    = "sandbox"
	EnvironmentTest       = "test"
)

// Credentials holds the per-manufacturer secrets needed to authenticate
// against a vendor API. Read-only to the core once loaded from the secret
// store.
type Credentials struct {
	Manufacturer     string            `json:"manufacturer"`
	ClientID         string            `json:"client_id"`
	ClientSecret     string            `json:"client_secret"`
	APIKey           string            `json:"api_key,omitempty"`
	Environment      string            `json:"environment"`
	AdditionalParams map[string]string `json:"additional_params,omitempty"`
}
