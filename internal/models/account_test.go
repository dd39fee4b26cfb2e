package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccountTokenHelpers(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(10 * time.Minute)
	past := now.Add(-10 * time.Minute)
	token := "opaque-token"

	var account Account
	require.False(t, account.HasValidEmailToken(now))
	require.False(t, account.HasValidResetToken(now))
	require.False(t, account.RefreshTokenMatches("anything", now))

	account.EmailToken = &token
	account.EmailTokenExpiresAt = &future
	require.True(t, account.HasValidEmailToken(now))

	account.EmailTokenExpiresAt = &past
	require.False(t, account.HasValidEmailToken(now))

	account.RefreshToken = &token
	account.RefreshTokenExpiresAt = &future
	require.True(t, account.RefreshTokenMatches(token, now))
	require.False(t, account.RefreshTokenMatches("other", now))

	account.RefreshTokenExpiresAt = &past
	require.False(t, account.RefreshTokenMatches(token, now))
}
