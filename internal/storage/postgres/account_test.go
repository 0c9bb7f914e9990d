package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("owlbear-den")
	require.NoError(t, err)
	assert.NotEqual(t, "owlbear-den", hash)
	assert.True(t, CheckPassword("owlbear-den", hash))
	assert.False(t, CheckPassword("owlbear-cave", hash))
	assert.False(t, CheckPassword("owlbear-den", "not-a-bcrypt-hash"))
}

// Property: a hash verifies its own password and no other.
func TestPropertyPasswordHash(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// bcrypt rejects inputs over 72 bytes.
		password := rapid.StringMatching(`[a-zA-Z0-9!@#$%^&*]{1,64}`).Draw(t, "password")
		other := rapid.StringMatching(`[a-zA-Z0-9]{1,64}`).Draw(t, "other")

		hash, err := HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		if !CheckPassword(password, hash) {
			t.Fatalf("hash of %q does not verify", password)
		}
		if other != password && CheckPassword(other, hash) {
			t.Fatalf("hash of %q verified %q", password, other)
		}
	})
}

func TestHashPassword_Salted(t *testing.T) {
	h1, err := HashPassword("same")
	require.NoError(t, err)
	h2, err := HashPassword("same")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestValidRole(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		role := rapid.OneOf(
			rapid.SampledFrom([]string{RolePlayer, RoleEditor, RoleAdmin}),
			rapid.StringMatching(`[a-z]{0,20}`),
		).Draw(t, "role")
		want := role == RolePlayer || role == RoleEditor || role == RoleAdmin
		if got := ValidRole(role); got != want {
			t.Fatalf("ValidRole(%q) = %v, want %v", role, got, want)
		}
	})
}

func TestAccountCaller(t *testing.T) {
	cases := []struct {
		role  string
		admin bool
	}{
		{RolePlayer, false},
		{RoleEditor, false},
		{RoleAdmin, true},
	}
	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			acct := Account{ID: "3f0c7a4e-1b2d-4c5e-8f9a-0b1c2d3e4f5a", Username: "dm", Role: tc.role}
			c := acct.Caller()
			assert.Equal(t, acct.ID, c.ID)
			assert.Equal(t, tc.admin, c.Admin)
			assert.False(t, c.Anonymous())
		})
	}
}
