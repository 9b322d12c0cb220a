package domain

import "strings"

// FormSnapshot is the flat field name → value mapping captured at submit time.
type FormSnapshot map[string]string

func (f FormSnapshot) Get(name string) string {
	if f == nil {
		return ""
	}
	return strings.TrimSpace(f[name])
}

func (f FormSnapshot) Has(name string) bool {
	return f.Get(name) != ""
}
