package azure

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	apiVersion     = "3.0"
	defaultTimeout = 30 * time.Second

	customDomainSuffix = ".cognitiveservices.azure.com"
	customDomainPath   = "/translator/text/v3.0"
)

// Config holds the settings for the Azure Translator client.
//
// Endpoint is the resource endpoint, e.g. https://api.cognitive.microsofttranslator.com
// or a custom domain such as https://xyz.cognitiveservices.azure.com.
// Region is only needed for regional or multi-service resources.
type Config struct {
	Endpoint string
	APIKey   string
	Region   string
	Timeout  time.Duration
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("API key is required")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("endpoint %q is not an absolute URL", c.Endpoint)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// GetHeaders returns the headers for a translation request
func (c *Config) GetHeaders() map[string]string {
	headers := map[string]string{
		"Ocp-Apim-Subscription-Key": c.APIKey,
		"Content-Type":              "application/json; charset=UTF-8",
	}
	if c.Region != "" {
		headers["Ocp-Apim-Subscription-Region"] = c.Region
	}
	return headers
}
