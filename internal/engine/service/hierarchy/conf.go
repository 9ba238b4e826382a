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
	"fmt"
	"time"
)

// Conf holds the engine tunables, read from the [hierarchy] section.
type Conf struct {
	CodePrefix        string        `mapstructure:"codePrefix"`
	CodeLength        int           `mapstructure:"codeLength"`
	MaxCodeAttempts   int           `mapstructure:"maxCodeAttempts"`
	ChunkSize         int           `mapstructure:"chunkSize"`
	JobLease          time.Duration `mapstructure:"jobLease"`
	RetryAttempts     int           `mapstructure:"retryAttempts"`
	RetryBackoff      time.Duration `mapstructure:"retryBackoff"`
	ReissueParentCode bool          `mapstructure:"reissueParentCode"`
}

func (c *Conf) SetDefaults() {
	if c.CodePrefix == "" {
		c.CodePrefix = "CAND"
	}
	if c.CodeLength <= 0 {
		c.CodeLength = 8
	}
	if c.MaxCodeAttempts <= 0 {
		c.MaxCodeAttempts = 5
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 500
	}
	if c.JobLease <= 0 {
		c.JobLease = 30 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 4
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 20 * time.Millisecond
	}
}

func (c *Conf) Validate() error {
	if c.CodeLength < 6 {
		return fmt.Errorf("hierarchy codeLength must be at least 6, got %d", c.CodeLength)
	}
	if len(c.CodePrefix)+1+c.CodeLength > 32 {
		return fmt.Errorf("hierarchy codePrefix %q with codeLength %d exceeds 32 characters", c.CodePrefix, c.CodeLength)
	}
	return nil
}
