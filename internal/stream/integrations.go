package stream

import (
	"regexp"
	"sort"
	"strings"
)

// Limits on integration signal collection per chunk.
const (
	maxIntegrationCandidates = 128
	maxIntegrationSignals    = 16
	maxEnvVars               = 32
)

var integrationKeywords = []string{
	"integration", "marketplace", "install", "connect", "database",
	"supabase", "neon", "upstash", "redis", "vercel",
	"env var", "envvar", "env_var", "environment variable",
	"api key", "api_key", "apikey", "mcp",
}

// knownProviders are recognized in identity fields when no explicit
// provider is given.
var knownProviders = []string{
	"supabase", "neon", "upstash", "redis", "planetscale", "mongodb", "stripe", "vercel",
}

var (
	signalNameFields = []fieldPath{
		path("name"), path("integrationName"), path("integration_name"),
		path("integration"), path("title"), path("label"),
	}
	signalProviderFields = []fieldPath{
		path("provider"), path("providerId"), path("provider_id"), path("providerSlug"),
		path("vendor"), path("service"),
	}
	signalIdentityFields = []fieldPath{
		path("name"), path("slug"), path("title"), path("label"), path("id"), path("integration"), path("type"),
	}
	signalStatusFields = []fieldPath{path("status"), path("state")}
	signalIntentFields = []fieldPath{path("intent"), path("action")}
	signalURLFields    = []fieldPath{
		path("marketplaceUrl"), path("marketplace_url"), path("installUrl"), path("install_url"),
		path("integrationUrl"), path("integration_url"),
	}
	signalLinkFields = []fieldPath{path("url"), path("href"), path("link")}

	envListKeys = []string{
		"envVars", "env_vars", "envVariables", "environmentVariables", "environment_variables",
		"requiredEnvVars", "required_env_vars", "missingEnvVars", "missing_env_vars",
		"env", "variables", "keys", "secrets",
	}
)

// envVarPattern is strict so arbitrary capitalized words are not taken for
// variable names.
var (
	envVarPattern  = regexp.MustCompile(`^[A-Z][A-Z0-9_]+$`)
	envVarInText   = regexp.MustCompile(`\b[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+\b`)
	explicitIntent = map[string]string{
		"install":     IntentInstall,
		"connect":     IntentConnect,
		"link":        IntentConnect,
		"configure":   IntentConfigure,
		"config":      IntentConfigure,
		"setup":       IntentConfigure,
		"env_vars":    IntentEnvVars,
		"env-vars":    IntentEnvVars,
		"envvars":     IntentEnvVars,
		"add_env":     IntentEnvVars,
		"set_env":     IntentEnvVars,
		"add-env-var": IntentEnvVars,
	}
)

// intentKeywords infer an intent from the text around a candidate, checked
// in order.
var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{IntentInstall, []string{"install"}},
	{IntentConnect, []string{"connect", "link"}},
	{IntentEnvVars, []string{"env var", "envvar", "env_var", "environment variable", "api key", "api_key", "secret"}},
	{IntentConfigure, []string{"configure", "config", "setup", "set up", "settings"}},
}

// ExtractIntegrationSignals finds requests in a chunk for the user to set up
// an external integration. The payload and the inputs, outputs and data of
// parts are searched for objects mentioning integrations; each such object
// that names something usable becomes a signal. Signals describing the same
// integration share a key and are returned once.
func ExtractIntegrationSignals(payload any, eventName string, parts []Part) []IntegrationSignal {
	roots := []any{payload}
	for _, p := range parts {
		for _, v := range []any{p.Input, p.Output} {
			if v != nil {
				roots = append(roots, v)
			}
		}
		if p.Data != nil {
			roots = append(roots, p.Data)
		}
	}

	var candidates []map[string]any
	for _, root := range roots {
		if len(candidates) >= maxIntegrationCandidates {
			break
		}
		walk(root, integrationScanDepth, func(node any, _ int) visitAction {
			obj, ok := node.(map[string]any)
			if !ok {
				return descend
			}
			if mentionsIntegration(obj) {
				candidates = append(candidates, obj)
				if len(candidates) >= maxIntegrationCandidates {
					return stopWalk
				}
			}
			return descend
		})
	}

	var signals []IntegrationSignal
	seen := make(map[string]bool)
	for _, obj := range candidates {
		sig, ok := buildSignal(obj, eventName)
		if !ok || seen[sig.Key] {
			continue
		}
		seen[sig.Key] = true
		signals = append(signals, sig)
		if len(signals) >= maxIntegrationSignals {
			break
		}
	}
	return signals
}

func mentionsIntegration(obj map[string]any) bool {
	for k, v := range obj {
		if containsAny(strings.ToLower(k), integrationKeywords) {
			return true
		}
		if s, ok := v.(string); ok && containsAny(strings.ToLower(s), integrationKeywords) {
			return true
		}
	}
	return false
}

func mentionsIntegrationBesidesName(obj map[string]any) bool {
	for k, v := range obj {
		if containsAny(strings.ToLower(k), integrationKeywords) {
			return true
		}
		if isNameField(k) {
			continue
		}
		if s, ok := v.(string); ok && containsAny(strings.ToLower(s), integrationKeywords) {
			return true
		}
	}
	return false
}

func isNameField(key string) bool {
	for _, p := range signalNameFields {
		if len(p) == 1 && p[0] == key {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func buildSignal(obj map[string]any, eventName string) (IntegrationSignal, bool) {
	sig := IntegrationSignal{SourceEvent: eventName}
	sig.Name, _ = firstString(obj, signalNameFields, nonEmpty)
	sig.Provider, _ = firstString(obj, signalProviderFields, nonEmpty)
	if sig.Provider == "" {
		sig.Provider = inferProvider(obj)
	}
	sig.Status, _ = firstString(obj, signalStatusFields, nonEmpty)
	sig.EnvVars = collectEnvVars(obj)
	sig.MarketplaceURL = marketplaceURL(obj)

	if sig.Provider == "" && len(sig.EnvVars) == 0 && sig.MarketplaceURL == "" {
		// A bare name counts only when something besides the name itself
		// mentions an integration, so a tool named "install_deps" is not one.
		if sig.Name == "" || !mentionsIntegrationBesidesName(obj) {
			return IntegrationSignal{}, false
		}
	}
	sig.Intent = inferIntent(obj, sig.EnvVars)
	sig.Key = signalKey(sig)
	return sig, true
}

func inferProvider(obj map[string]any) string {
	for _, p := range signalIdentityFields {
		s, ok := firstString(obj, []fieldPath{p}, nonEmpty)
		if !ok {
			continue
		}
		lower := strings.ToLower(s)
		for _, provider := range knownProviders {
			if strings.Contains(lower, provider) {
				return provider
			}
		}
	}
	return ""
}

func marketplaceURL(obj map[string]any) string {
	if u, ok := firstString(obj, signalURLFields, nonEmpty); ok {
		return u
	}
	u, _ := firstString(obj, signalLinkFields, func(s string) bool {
		lower := strings.ToLower(s)
		return strings.Contains(lower, "marketplace") || strings.Contains(lower, "/integrations")
	})
	return u
}

func inferIntent(obj map[string]any, envVars []string) string {
	if raw, ok := firstString(obj, signalIntentFields, nonEmpty); ok {
		if intent, ok := explicitIntent[strings.ToLower(strings.TrimSpace(raw))]; ok {
			return intent
		}
	}
	text := nearbyText(obj)
	for _, rule := range intentKeywords {
		if containsAny(text, rule.keywords) {
			return rule.intent
		}
	}
	if len(envVars) > 0 {
		return IntentEnvVars
	}
	return ""
}

// nearbyText is the lowercased keys and string values of obj itself.
func nearbyText(obj map[string]any) string {
	var b strings.Builder
	for _, k := range sortedKeys(obj) {
		b.WriteString(strings.ToLower(k))
		b.WriteByte(' ')
		if s, ok := obj[k].(string); ok {
			b.WriteString(strings.ToLower(s))
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func collectEnvVars(obj map[string]any) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if len(out) >= maxEnvVars || seen[name] || !envVarPattern.MatchString(name) {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	for _, key := range envListKeys {
		switch v := obj[key].(type) {
		case []any:
			for _, item := range v {
				switch el := item.(type) {
				case string:
					add(el)
				case map[string]any:
					if name, ok := firstString(el, []fieldPath{path("key"), path("name"), path("envVar")}, nil); ok {
						add(name)
					}
				}
			}
		case map[string]any:
			for _, name := range sortedKeys(v) {
				add(name)
			}
		case string:
			for _, name := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
				add(name)
			}
		}
	}
	for _, k := range sortedKeys(obj) {
		if s, ok := obj[k].(string); ok {
			for _, name := range envVarInText.FindAllString(s, -1) {
				add(name)
			}
		}
	}
	return out
}

// signalKey identifies the integration a signal asks for, independent of
// where in the payload it was found.
func signalKey(sig IntegrationSignal) string {
	env := append([]string(nil), sig.EnvVars...)
	sort.Strings(env)
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	return strings.Join([]string{
		norm(sig.Name),
		norm(sig.Provider),
		sig.Intent,
		strings.Join(env, ","),
		norm(sig.SourceEvent),
	}, "|")
}
