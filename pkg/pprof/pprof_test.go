// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pprof

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s := NewPprofServer(PprofConfig{})
	assert.Equal(t, "127.0.0.1", s.config.Host)
	assert.Equal(t, 6060, s.config.Port)
	assert.Equal(t, "/debug/pprof", s.config.Path)
}

func TestHandler(t *testing.T) {
	s := NewServer(PprofConfig{Path: "/_pprof"})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	for _, path := range []string{"/_pprof/cmdline", "/_pprof/goroutine", "/_pprof/"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestStartDisabled(t *testing.T) {
	s := NewServer(PprofConfig{})
	require.NoError(t, s.Start())
	assert.Nil(t, s.Addr())
	assert.NoError(t, s.Stop(context.Background()))
}
