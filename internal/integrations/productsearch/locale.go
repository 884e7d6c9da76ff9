package productsearch

import "strings"

// Marketplace is the upstream storefront a locale maps to.
type Marketplace struct {
	Country  string
	Domain   string
	Language string
}

const DefaultLocale = "en-US"

var marketplaces = map[string]Marketplace{
	"en-US": {Country: "us", Domain: "amazon.com", Language: "en"},
	"en-GB": {Country: "gb", Domain: "amazon.co.uk", Language: "en"},
	"en-CA": {Country: "ca", Domain: "amazon.ca", Language: "en"},
	"en-AU": {Country: "au", Domain: "amazon.com.au", Language: "en"},
	"en-IN": {Country: "in", Domain: "amazon.in", Language: "en"},
	"de-DE": {Country: "de", Domain: "amazon.de", Language: "de"},
	"fr-FR": {Country: "fr", Domain: "amazon.fr", Language: "fr"},
	"es-ES": {Country: "es", Domain: "amazon.es", Language: "es"},
	"it-IT": {Country: "it", Domain: "amazon.it", Language: "it"},
	"ja-JP": {Country: "jp", Domain: "amazon.co.jp", Language: "ja"},
}

// ResolveLocale maps a locale code to its marketplace. Matching is
// case-insensitive and accepts underscores; unknown codes silently fall back
// to the default marketplace.
func ResolveLocale(code string) Marketplace {
	code = strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
	for k, m := range marketplaces {
		if strings.EqualFold(k, code) {
			return m
		}
	}
	return marketplaces[DefaultLocale]
}
