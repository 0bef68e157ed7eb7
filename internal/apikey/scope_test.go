package apikey

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"authgate/pkg/domain"
)

func TestParseScope(t *testing.T) {
	t.Run("expands role entries to role claims", func(t *testing.T) {
		claims := ParseScope("role:Editor\nrole:Viewer")
		assert.Equal(t, []domain.Claim{
			{Type: domain.ClaimTypeRole, Value: "Editor"},
			{Type: domain.ClaimTypeRole, Value: "Viewer"},
		}, claims)
	})

	t.Run("passes non-alias claim types through literally", func(t *testing.T) {
		claims := ParseScope("tenant:acme")
		assert.Equal(t, []domain.Claim{{Type: "tenant", Value: "acme"}}, claims)
	})

	t.Run("malformed entry is skipped without aborting the rest", func(t *testing.T) {
		claims := ParseScope("onlyonepart\nrole:Editor")
		assert.Equal(t, []domain.Claim{{Type: domain.ClaimTypeRole, Value: "Editor"}}, claims)
	})

	t.Run("empty lines and empty parts contribute nothing", func(t *testing.T) {
		assert.Empty(t, ParseScope("\n\n:value\ntype:\n"))
	})

	t.Run("empty scope yields no claims", func(t *testing.T) {
		assert.Empty(t, ParseScope(""))
	})
}
