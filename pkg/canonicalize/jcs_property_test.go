//go:build property
// +build property

// Property-based tests for canonicalization determinism.
package canonicalize_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/scbe-labs/gate/pkg/canonicalize"
)

// TestSectionHashDeterminism verifies SectionHash(obj) == SectionHash(obj)
// for arbitrary flat objects, independent of map construction order.
func TestSectionHashDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("section hash is construction-order independent", prop.ForAll(
		func(keys []string, values []string) bool {
			forward := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] != "" {
					forward[keys[i]] = values[i]
				}
			}
			reverse := make(map[string]any)
			for i := min(len(keys), len(values)) - 1; i >= 0; i-- {
				if keys[i] != "" {
					reverse[keys[i]] = values[i]
				}
			}

			h1, err1 := canonicalize.SectionHash(forward)
			h2, err2 := canonicalize.SectionHash(reverse)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil // fail consistently or not at all
			}
			return h1 == h2
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("canonical bytes are stable across calls", prop.ForAll(
		func(key string, value string) bool {
			obj := map[string]any{key: value}
			b1, err1 := canonicalize.JCS(obj)
			b2, err2 := canonicalize.JCS(obj)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return string(b1) == string(b2)
		},
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
