package keys

import (
	"fmt"
	"os"
)

// Resolver finds credentials in priority order: an explicit value, the
// keys.json store, the secrets file, then the environment.
type Resolver struct {
	store       *Store
	secrets     map[string]string
	secretsPath string
	getenv      func(string) string
}

type ResolverOption func(*Resolver)

func WithStore(store *Store) ResolverOption {
	return func(r *Resolver) {
		r.store = store
	}
}

// WithSecrets adds values loaded from a secrets file at path.
func WithSecrets(path string, secrets map[string]string) ResolverOption {
	return func(r *Resolver) {
		r.secretsPath = path
		r.secrets = secrets
	}
}

func WithGetenv(getenv func(string) string) ResolverOption {
	return func(r *Resolver) {
		if getenv != nil {
			r.getenv = getenv
		}
	}
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{getenv: os.Getenv}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the value for the named credential and where it came from.
func (r *Resolver) Resolve(name, explicit string) (string, string, error) {
	cred, err := Lookup(name)
	if err != nil {
		return "", "", err
	}

	if explicit != "" {
		return explicit, "command-line flag", nil
	}

	if r.store != nil {
		if v, err := r.store.Get(cred.Name); err == nil && v != "" {
			return v, fmt.Sprintf("stored key (%s)", r.store.Path()), nil
		}
	}

	if v := r.secrets[cred.EnvVar]; v != "" {
		return v, fmt.Sprintf("secrets file (%s)", r.secretsPath), nil
	}

	if v := r.getenv(cred.EnvVar); v != "" {
		return v, fmt.Sprintf("environment variable (%s)", cred.EnvVar), nil
	}

	return "", "", fmt.Errorf("%s required: run 'imgpost keys set %s' or set %s", cred.Description, cred.Name, cred.EnvVar)
}

// Optional is Resolve for credentials that may be absent.
func (r *Resolver) Optional(name, explicit string) string {
	v, _, err := r.Resolve(name, explicit)
	if err != nil {
		return ""
	}
	return v
}
