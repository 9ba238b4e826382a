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

package hierarchy

import (
	"bytes"
	"io"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeGenerator(t *testing.T) {
	conf := &Conf{CodePrefix: "VOTE", CodeLength: 10}
	gen := NewCodeGenerator(conf)
	pattern := regexp.MustCompile(`^VOTE-[A-Z0-9]{10}$`)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := gen.Generate()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
		assert.False(t, seen[code], "duplicate %s", code)
		seen[code] = true
	}
}

func TestCodeGenerator_NoPrefix(t *testing.T) {
	gen := &randomCodeGenerator{length: 6, source: bytes.NewReader(bytes.Repeat([]byte{0, 255, 35}, 8))}
	code, err := gen.Generate()
	require.NoError(t, err)
	// 255 is rejected, 0 and 35 map to the ends of the alphabet
	assert.Equal(t, "A9A9A9", code)
}

func TestCodeGenerator_SourceError(t *testing.T) {
	gen := &randomCodeGenerator{prefix: "CAND", length: 6, source: bytes.NewReader(nil)}
	_, err := gen.Generate()
	assert.ErrorIs(t, err, io.EOF)
}

func TestConf(t *testing.T) {
	conf := &Conf{}
	conf.SetDefaults()
	assert.Equal(t, "CAND", conf.CodePrefix)
	assert.Equal(t, 8, conf.CodeLength)
	assert.Equal(t, 500, conf.ChunkSize)
	assert.False(t, conf.ReissueParentCode)
	require.NoError(t, conf.Validate())

	assert.Error(t, (&Conf{CodePrefix: "CAND", CodeLength: 4}).Validate())
	assert.Error(t, (&Conf{CodePrefix: "AVERYLONGCAMPAIGNPREFIX", CodeLength: 12}).Validate())
}
