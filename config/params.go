package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Params is a flat key/value parameter set for one strategy instance.
// Keys are case-insensitive.
type Params map[string]string

// LoadParams reads a KEY=value parameter file.
func LoadParams(path string) (Params, error) {
	raw, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("config: read params %s: %w", path, err)
	}
	return NewParams(raw), nil
}

// NewParams normalises keys to lower case.
func NewParams(raw map[string]string) Params {
	p := make(Params, len(raw))
	for k, v := range raw {
		p[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return p
}

// Has reports whether key is set to a non-empty value.
func (p Params) Has(key string) bool {
	return p[strings.ToLower(key)] != ""
}

// String returns the value for key or fallback.
func (p Params) String(key, fallback string) string {
	if v := p[strings.ToLower(key)]; v != "" {
		return v
	}
	return fallback
}

// Int returns the integer value for key or fallback when unset or invalid.
func (p Params) Int(key string, fallback int) int {
	v := p[strings.ToLower(key)]
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q", key, v)
		return fallback
	}
	return n
}

// Float returns the float value for key or fallback when unset or invalid.
func (p Params) Float(key string, fallback float64) float64 {
	v := p[strings.ToLower(key)]
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q", key, v)
		return fallback
	}
	return f
}

// Bool returns the boolean value for key or fallback.
func (p Params) Bool(key string, fallback bool) bool {
	v := p[strings.ToLower(key)]
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool for %s: %q", key, v)
		return fallback
	}
	return b
}

// Range parses a "lo,hi" pair. ok is false when the key is unset or
// malformed.
func (p Params) Range(key string) (lo, hi float64, ok bool) {
	v := p[strings.ToLower(key)]
	if v == "" {
		return 0, 0, false
	}
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		log.Printf("[config] invalid range for %s: %q", key, v)
		return 0, 0, false
	}
	lo, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	hi, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		log.Printf("[config] invalid range for %s: %q", key, v)
		return 0, 0, false
	}
	return lo, hi, true
}

// Prefixed returns the numeric values of every key starting with prefix,
// keyed by the remainder. Used for kernel parameters such as
// "ma_kernel_alpha=0.3".
func (p Params) Prefixed(prefix string) map[string]float64 {
	prefix = strings.ToLower(prefix)
	out := make(map[string]float64)
	for k, v := range p {
		if !strings.HasPrefix(k, prefix) || len(k) == len(prefix) {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[k[len(prefix):]] = f
	}
	return out
}
