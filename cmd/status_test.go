package main

import (
	"net/http/httptest"
	"testing"

	"github.com/cwbudde/bootfit/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand(t *testing.T) {
	srv := server.NewServer(":0", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	out, err := execute(t, "", "status", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "No jobs found")

	_, err = execute(t, "", "status", "missing-job", "--server", ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found: missing-job")
}

func TestStatusCommand_ServerDown(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	_, err := execute(t, "", "status", "--server", url)
	assert.Error(t, err)
}
