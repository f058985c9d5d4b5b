//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"civicgate/internal/audit"
	"civicgate/pkg/testutil/containers"
)

const testTopic = "civicgate.security-audit.test"

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda  *containers.RedpandaContainer
	publisher *audit.KafkaPublisher
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.redpanda = containers.NewRedpandaContainer(s.T())

	publisher, err := audit.NewKafkaPublisher(context.Background(), []string{s.redpanda.Broker}, testTopic)
	s.Require().NoError(err)
	s.publisher = publisher
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	_ = s.publisher.Close()
	_ = s.redpanda.Container.Terminate(context.Background())
}

func (s *KafkaPublisherSuite) TestEmit() {
	ctx := context.Background()

	event := audit.Event{
		ID:         "evt-1",
		Action:     audit.ActionLockoutTriggered,
		OccurredAt: time.Now().UTC(),
		Fields: map[string]string{
			"identifier": "c***@example.gov",
			"source":     "203.0.113.0/24",
		},
	}
	s.Require().NoError(s.publisher.Emit(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	fetches := consumer.PollFetches(fetchCtx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().NotEmpty(records)

	var got audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal("evt-1", got.ID)
	s.Equal(audit.ActionLockoutTriggered, got.Action)
	s.Equal("c***@example.gov", got.Fields["identifier"])
	s.Equal(audit.ActionLockoutTriggered, string(records[0].Key))
}
