// Package keys stores and resolves the credentials of every vendor the
// pipeline talks to.
package keys

import (
	"fmt"
	"strings"
)

type Credential struct {
	Name        string
	EnvVar      string
	Description string
	// Required credentials are needed for a full publish run.
	Required bool
}

const (
	HuggingFace        = "huggingface"
	Imgur              = "imgur"
	InstagramToken     = "instagram-token"
	InstagramAccountID = "instagram-account"
	NewsAPI            = "newsapi"
	AlphaVantage       = "alphavantage"
)

var Credentials = []Credential{
	{Name: HuggingFace, EnvVar: "HF_TOKEN", Description: "Hugging Face inference token", Required: true},
	{Name: Imgur, EnvVar: "IMGUR_CLIENT_ID", Description: "Imgur application client ID", Required: true},
	{Name: InstagramToken, EnvVar: "INSTAGRAM_ACCESS_TOKEN", Description: "Instagram Graph API access token", Required: true},
	{Name: InstagramAccountID, EnvVar: "INSTAGRAM_ACCOUNT_ID", Description: "Instagram business account ID", Required: true},
	{Name: NewsAPI, EnvVar: "NEWS_API_KEY", Description: "NewsAPI key for news enrichment"},
	{Name: AlphaVantage, EnvVar: "ALPHA_VANTAGE_API_KEY", Description: "Alpha Vantage key for market enrichment"},
}

// Lookup finds a credential by name or environment variable, ignoring case.
func Lookup(name string) (Credential, error) {
	for _, c := range Credentials {
		if strings.EqualFold(c.Name, name) || strings.EqualFold(c.EnvVar, name) {
			return c, nil
		}
	}
	return Credential{}, fmt.Errorf("unknown credential %q (valid: %s)", name, strings.Join(Names(), ", "))
}

func Names() []string {
	names := make([]string, len(Credentials))
	for i, c := range Credentials {
		names[i] = c.Name
	}
	return names
}
