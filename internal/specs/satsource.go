package specs

// SatSourceSpec builds the canned administrative spec for the SatSource
// integration. The api key is attached as a secret when provided so the
// registry can answer whether credentials exist without ever echoing them.
func SatSourceSpec(providerID, apiKey string) *ProviderSpec {
	secrets := map[string]string{}
	if apiKey != "" {
		secrets["api_key"] = apiKey
	}
	return &ProviderSpec{
		ProviderID: providerID,
		BaseURL:    "https://api.satsource.ag",
		Auth: AuthConfig{
			Scheme:  "header",
			Header:  "api-key",
			Secrets: secrets,
		},
		Endpoints: []EndpointConfig{
			{Name: "reports", Method: "POST", Path: "/v2/reports", Stable: true},
			{Name: "reports-beta", Method: "POST", Path: "/beta/v2/reports", Stable: false},
		},
		Callback: &CallbackExpectation{
			Event:       "report.completed",
			URLTemplate: "/api/v1/providers/{providerId}/callback?ref={referenceId}",
			PayloadFields: []string{
				"referenceId", "status", "artifactUrl", "satScore", "metadata",
			},
		},
		Parameters: []RequestParameter{
			{Name: "regionIds", Type: "list", Required: true, Description: "Region identifiers resolved from the request location"},
			{Name: "referenceId", Type: "string", Required: true, Description: "Caller supplied correlation id"},
			{Name: "reportType", Type: "string", Required: true, Description: "seasonal, annual or multi-year"},
			{Name: "yearCount", Type: "int", Required: true, Description: "Number of years covered; bounded by reportType"},
			{Name: "callbackUrl", Type: "string", Required: false, Description: "Rendered delivery URL for the completed report"},
		},
	}
}
