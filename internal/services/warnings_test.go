package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWarningsServiceAddAndList(t *testing.T) {
	s := NewWarningsService()
	id := s.Add(WarningCategoryMCPHealth, "server unhealthy", "connection refused", "srv-1")
	require.NotEmpty(t, id)

	warnings := s.List()
	require.Len(t, warnings, 1)
	require.Equal(t, "srv-1", warnings[0].ServerID)
}

func TestWarningsServiceReplacesSameServerWarning(t *testing.T) {
	s := NewWarningsService()
	s.Add(WarningCategoryMCPHealth, "first failure", "", "srv-1")
	s.Add(WarningCategoryMCPHealth, "second failure", "", "srv-1")

	warnings := s.List()
	require.Len(t, warnings, 1)
	require.Equal(t, "second failure", warnings[0].Message)
}

func TestWarningsServiceClearByServerID(t *testing.T) {
	s := NewWarningsService()
	s.Add(WarningCategoryMCPHealth, "unhealthy", "", "srv-1")

	require.True(t, s.ClearByServerID(WarningCategoryMCPHealth, "srv-1"))
	require.Empty(t, s.List())
	require.False(t, s.ClearByServerID(WarningCategoryMCPHealth, "srv-1"))
}
