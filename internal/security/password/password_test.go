package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 16}

func TestHashVerify(t *testing.T) {
	h, err := Hash(fast, "secret123")
	require.NoError(t, err)
	assert.True(t, IsHash(h))
	assert.True(t, strings.HasPrefix(h, "$argon2id$v=19$m=1024,t=1,p=1$"))

	assert.True(t, Verify("secret123", h))
	assert.False(t, Verify("secret124", h))
	assert.False(t, Verify("", h))
}

func TestVerify_RejectsMalformed(t *testing.T) {
	for _, phc := range []string{
		"",
		"secret123",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$!!$a2V5",
	} {
		assert.False(t, Verify("secret123", phc), phc)
	}
}

func TestHash_EmptyPassword(t *testing.T) {
	_, err := Hash(fast, "")
	require.Error(t, err)
}

func TestAdminPolicy(t *testing.T) {
	assert.ElementsMatch(t, []string{"too_short", "missing_lower"}, AdminPolicy.Violations("SHORT1"))
	assert.Equal(t, []string{"missing_digit"}, AdminPolicy.Violations("a-long-password-no-digits"))
	assert.Empty(t, AdminPolicy.Violations("a-long-password-42"))

	strict := Policy{MinLength: 4, RequireUpper: true, RequireSymbol: true}
	assert.ElementsMatch(t, []string{"missing_upper", "missing_symbol"}, strict.Violations("abcd"))
	assert.Empty(t, strict.Violations("Ab!d"))
}
