// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, nil)
	require.NoError(t, err)
	return c
}

func TestConfig_Validate(t *testing.T) {
	t.Run("default is valid", func(t *testing.T) {
		assert.NoError(t, DefaultConfig().Validate())
	})

	t.Run("missing base url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BaseURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Timeout = 0
		assert.Error(t, cfg.Validate())
	})
}

func TestClient_ListProjects(t *testing.T) {
	client := createTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/projects", r.URL.Path)
		_ = json.NewEncoder(w).Encode(listProjectsResponse{Projects: []Project{
			{ID: "p1", Title: "research", Status: "running", NodeCount: 12},
			{ID: "p2", Title: "report", Status: "completed", NodeCount: 40},
		}})
	}))

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "p1", projects[0].ID)
	assert.Equal(t, 40, projects[1].NodeCount)
}

func TestClient_CreateProject(t *testing.T) {
	t.Run("round trips goal and max steps", func(t *testing.T) {
		client := createTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			var req CreateProjectRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "summarize the codebase", req.Goal)
			assert.Equal(t, 25, req.MaxSteps)
			_ = json.NewEncoder(w).Encode(Project{ID: "p9", Title: req.Goal, Status: "created"})
		}))

		p, err := client.CreateProject(context.Background(), CreateProjectRequest{
			Goal:     "summarize the codebase",
			MaxSteps: 25,
		})
		require.NoError(t, err)
		assert.Equal(t, "p9", p.ID)
	})

	t.Run("empty goal rejected locally", func(t *testing.T) {
		client := createTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("request should not reach the backend")
		}))

		_, err := client.CreateProject(context.Background(), CreateProjectRequest{})
		assert.ErrorIs(t, err, ErrBadRequest)
	})
}

func TestClient_DeleteProject(t *testing.T) {
	t.Run("not found maps to sentinel", func(t *testing.T) {
		client := createTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(apiError{Error: "no such project", Code: "NOT_FOUND"})
		}))

		err := client.DeleteProject(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrProjectNotFound)
		assert.Contains(t, err.Error(), "no such project")
	})

	t.Run("empty id rejected locally", func(t *testing.T) {
		client := createTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("request should not reach the backend")
		}))
		assert.ErrorIs(t, client.DeleteProject(context.Background(), ""), ErrBadRequest)
	})
}

func TestClient_SwitchProject(t *testing.T) {
	client := createTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/projects/switch", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "p3", body["project_id"])
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, client.SwitchProject(context.Background(), "p3"))
}

func TestClient_DownloadReport(t *testing.T) {
	report := []byte("# Final Report\n\nall nodes done\n")
	client := createTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/projects/p1/report", r.URL.Path)
		_, _ = w.Write(report)
	}))

	var buf bytes.Buffer
	n, err := client.DownloadReport(context.Background(), "p1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(report)), n)
	assert.Equal(t, report, buf.Bytes())
}

func TestClient_ServerErrors(t *testing.T) {
	client := createTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.ListProjects(context.Background())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestClient_UnreachableBackend(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = c.ListProjects(context.Background())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}
