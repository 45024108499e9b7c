//go:build kafkatest

// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package pubsub

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/orlangure/gnomock"
	kafkapreset "github.com/orlangure/gnomock/preset/kafka"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tenantconf/config"
	"github.com/cardinalhq/tenantconf/configdb"
)

const testTopic = "tenantconf.invalidations.test"

var sharedBroker string

func TestMain(m *testing.M) {
	container, err := gnomock.Start(kafkapreset.Preset(kafkapreset.WithTopics(testTopic)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start Kafka container: %v\n", err)
		os.Exit(1)
	}
	sharedBroker = container.Address(kafkapreset.BrokerPort)

	code := m.Run()

	if err := gnomock.Stop(container); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stop Kafka container: %v\n", err)
	}
	os.Exit(code)
}

func testKafkaConfig() config.KafkaConfig {
	cfg := config.DefaultConfig().Kafka
	cfg.Brokers = []string{sharedBroker}
	cfg.Topic = testTopic
	return cfg
}

func TestKafkaBackend_DeliversToOtherInstances(t *testing.T) {
	writer, err := NewKafkaBackend(testKafkaConfig(), "writer", nil)
	require.NoError(t, err)
	defer func() { _ = writer.Close() }()

	reader, err := NewKafkaBackend(testKafkaConfig(), "reader", nil)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	received := make(chan Invalidation, 16)
	reader.Subscribe(func(_ context.Context, inv Invalidation) error {
		received <- inv
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = reader.Run(ctx) }()

	// The reader starts at the newest offset, so keep publishing until its
	// group has joined.
	var got Invalidation
	require.Eventually(t, func() bool {
		pubCtx, pubCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pubCancel()
		require.NoError(t, writer.Publish(pubCtx, NewInvalidation("writer", configdb.TenantScope("cam"))))
		select {
		case got = <-received:
			return true
		case <-time.After(time.Second):
			return false
		}
	}, 60*time.Second, 100*time.Millisecond)

	require.Equal(t, "writer", got.Origin)
	require.Equal(t, configdb.TenantScope("cam"), got.Scope)
}
