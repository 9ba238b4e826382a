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
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator produces candidate invite codes. Uniqueness is enforced by
// the store, the generator only has to make collisions unlikely.
type CodeGenerator interface {
	Generate() (string, error)
}

// CodeGeneratorFunc adapts a function to CodeGenerator.
type CodeGeneratorFunc func() (string, error)

func (f CodeGeneratorFunc) Generate() (string, error) {
	return f()
}

type randomCodeGenerator struct {
	prefix string
	length int
	source io.Reader
}

// NewCodeGenerator returns a generator of PREFIX-XXXXXXXX codes drawn from crypto/rand.
func NewCodeGenerator(conf *Conf) CodeGenerator {
	return &randomCodeGenerator{prefix: conf.CodePrefix, length: conf.CodeLength, source: rand.Reader}
}

func (g *randomCodeGenerator) Generate() (string, error) {
	var b strings.Builder
	b.Grow(len(g.prefix) + 1 + g.length)
	if g.prefix != "" {
		b.WriteString(g.prefix)
		b.WriteByte('-')
	}

	// 252 = 7*36, 丢弃更大的字节避免取模偏差
	buf := make([]byte, g.length*2)
	for n := 0; n < g.length; {
		if _, err := io.ReadFull(g.source, buf); err != nil {
			return "", fmt.Errorf("read random source: %w", err)
		}
		for _, v := range buf {
			if v >= 252 {
				continue
			}
			b.WriteByte(codeAlphabet[int(v)%len(codeAlphabet)])
			if n++; n == g.length {
				break
			}
		}
	}
	return b.String(), nil
}
