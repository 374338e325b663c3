package cache

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	keyDelimiter  = ":"
	wildcardToken = "all"
)

// Filter holds named filter dimensions. A missing name and an empty value are equivalent.
type Filter map[string]string

// KeyBuilder derives cache keys for one resource namespace from an ordered set of dimensions.
type KeyBuilder struct {
	namespace  string
	dimensions []string
}

// NewKeyBuilder returns a builder producing "<namespace>:<dim1>:<dim2>..." keys.
func NewKeyBuilder(namespace string, dimensions ...string) KeyBuilder {
	return KeyBuilder{
		namespace:  namespace,
		dimensions: append([]string(nil), dimensions...),
	}
}

// Namespace returns the resource namespace token.
func (b KeyBuilder) Namespace() string {
	return b.namespace
}

// Build returns the key for filter. Dimensions outside the builder's set are ignored.
func (b KeyBuilder) Build(filter Filter) string {
	segments := make([]string, 0, len(b.dimensions)+1)
	segments = append(segments, b.namespace)
	for _, dimension := range b.dimensions {
		segments = append(segments, segmentFor(filter[dimension]))
	}
	return strings.Join(segments, keyDelimiter)
}

// Wildcard returns the key with every dimension absent.
func (b KeyBuilder) Wildcard() string {
	return b.Build(nil)
}

// Covering returns every key whose listing could contain a record carrying filter's values:
// each present dimension appears once as its value and once as the wildcard.
func (b KeyBuilder) Covering(filter Filter) []string {
	combinations := []Filter{{}}
	for _, dimension := range b.dimensions {
		value := normalizeValue(filter[dimension])
		if value == "" {
			continue
		}
		expanded := make([]Filter, 0, len(combinations)*2)
		for _, combination := range combinations {
			withValue := make(Filter, len(combination)+1)
			for name, existing := range combination {
				withValue[name] = existing
			}
			withValue[dimension] = value
			expanded = append(expanded, combination, withValue)
		}
		combinations = expanded
	}

	keys := make([]string, 0, len(combinations))
	seen := make(map[string]struct{}, len(combinations))
	for _, combination := range combinations {
		key := b.Build(combination)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// FilterValue normalizes a caller-supplied filter value; a blank value or the wildcard
// token in any case means the dimension is absent.
func FilterValue(raw string) string {
	value := normalizeValue(raw)
	if strings.EqualFold(value, wildcardToken) {
		return ""
	}
	return value
}

func segmentFor(raw string) string {
	value := normalizeValue(raw)
	if value == "" {
		return wildcardToken
	}
	if strings.EqualFold(value, wildcardToken) {
		// A literal value spelled like the wildcard must not share its key.
		return fmt.Sprintf("%%%02X%s", value[0], url.QueryEscape(value[1:]))
	}
	return url.QueryEscape(value)
}

func normalizeValue(raw string) string {
	return strings.TrimSpace(raw)
}
