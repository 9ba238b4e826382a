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

package audit

import (
	"github.com/go-arcade/hierarchy/internal/engine/service/hierarchy"
	"github.com/go-arcade/hierarchy/pkg/cache"
	"github.com/google/wire"
)

// ProviderSet 提供审计输出
var ProviderSet = wire.NewSet(ProvideForwarder)

// ProvideForwarder 按配置选择输出并订阅级联变更
func ProvideForwarder(conf Conf, redisConf cache.Redis, cascade *hierarchy.CascadeOperator) (*Forwarder, func(), error) {
	conf.SetDefaults()
	if err := conf.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		writer      Writer
		closeClient = func() {}
	)
	switch conf.Sink {
	case SinkNone:
		return nil, func() {}, nil
	case SinkLog:
		writer = LogWriter{}
	case SinkRedis:
		client, err := cache.NewRedis(redisConf)
		if err != nil {
			return nil, nil, err
		}
		writer = NewRedisStreamWriter(client, conf.Stream, conf.MaxLen)
		closeClient = func() { _ = client.Close() }
	}

	f := NewForwarder(writer, conf.Buffer, conf.Timeout)
	cascade.Subscribe(f.Handle)
	return f, func() {
		f.Close()
		closeClient()
	}, nil
}
