package secrets

import (
	"os"
	"strings"
)

// EnvLoader returns a Loader that reads the named environment
// variables. Webhook sources reference their signing secrets this way,
// so secrets stay out of the config file. Values are trimmed of
// surrounding whitespace; unset or empty variables are omitted.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}
