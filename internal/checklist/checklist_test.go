package checklist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForPolicyType(t *testing.T) {
	cases := []struct{ in, want string }{
		{"hr", "GDPR"},
		{"posh", "GDPR"},
		{"dpdp", "DPDP"},
		{"hipaa", "HIPAA"},
		{"GDPR", "GDPR"},
		{"unknown-type", "GDPR"},
		{"", "GDPR"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ForPolicyType(tc.in), "policy type %q", tc.in)
	}
}

func TestFrameworks(t *testing.T) {
	assert.Equal(t, []string{"DPDP", "GDPR", "HIPAA"}, Frameworks())
	for _, fw := range Frameworks() {
		assert.NotEmpty(t, Items(fw))
	}
}

func TestClampTopK(t *testing.T) {
	assert.Equal(t, 3, ClampTopK(0))
	assert.Equal(t, 3, ClampTopK(-5))
	assert.Equal(t, 8, ClampTopK(8))
	assert.Equal(t, 30, ClampTopK(100))
}

func TestSelectRelevant(t *testing.T) {
	t.Run("matching question ranks first", func(t *testing.T) {
		corpus := "our procedure covers personal data breaches reported to the supervisory authority within 72 hours"
		items := SelectRelevant("GDPR", corpus, 3)
		require.Len(t, items, 3)
		assert.Equal(t, "gdpr-5", items[0].ID)
	})

	t.Run("ties keep canonical order", func(t *testing.T) {
		items := SelectRelevant("GDPR", "", len(Items("GDPR")))
		require.Len(t, items, len(Items("GDPR")))
		for i, it := range Items("GDPR") {
			assert.Equal(t, it.ID, items[i].ID)
		}
	})

	t.Run("topN larger than checklist", func(t *testing.T) {
		items := SelectRelevant("DPDP", "consent", 100)
		assert.Len(t, items, len(Items("DPDP")))
	})

	t.Run("non-positive topN", func(t *testing.T) {
		assert.Nil(t, SelectRelevant("GDPR", "text", 0))
	})
}

func TestStableSessionID(t *testing.T) {
	assert.Equal(t, "audit:acme:policy.pdf", StableSessionID("acme", "/srv/uploads/policy.pdf"))
	assert.Equal(t, "audit:acme:policy.pdf", StableSessionID("acme", `C:\docs\policy.pdf`))
	assert.Equal(t, "audit:acme:policy.pdf", StableSessionID("acme", "policy.pdf"))
	assert.Equal(t, StableSessionID("acme", "a/policy.pdf"), StableSessionID("acme", "b/policy.pdf"))
}
