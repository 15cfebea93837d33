package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/doc-history/internal/auth"
	"github.com/spec-kit/doc-history/internal/domain"
)

func TestDevTokenIssuesParsableToken(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "devtoken-test")

	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut

	require.NoError(t, app.Run([]string{"devtoken", "--subject", "alice", "--role", "admin"}))

	claims, err := auth.NewTokenManager("devtoken-test", 60).ParseToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
	assert.Contains(t, errOut.String(), "role=admin")
}

func TestDevTokenRejectsUnknownRole(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}

	err := app.Run([]string{"devtoken", "--role", "root"})
	assert.Error(t, err)
}
