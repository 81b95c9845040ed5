package providers

import "strings"

// ProviderRef is one entry of a provider list such as "openai:team|mock".
// KeyAlias selects per-alias credentials or, for ollama, the model.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList splits a "|" separated list. Names are lower-cased and an
// empty list yields the mock provider.
func ParseProviderList(raw string) []ProviderRef {
	var out []ProviderRef
	for _, entry := range strings.Split(raw, "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, alias, _ := strings.Cut(entry, ":")
		out = append(out, ProviderRef{
			Raw:      entry,
			Name:     strings.ToLower(strings.TrimSpace(name)),
			KeyAlias: strings.TrimSpace(alias),
		})
	}
	if len(out) == 0 {
		return []ProviderRef{{Raw: "mock", Name: "mock"}}
	}
	return out
}
