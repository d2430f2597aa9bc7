package producers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/giftcert-ledger/internal/config"
)

func TestCreateKafkaTopicIfNotExists(t *testing.T) {
	partitionReadDelay = time.Millisecond
	t.Cleanup(func() { partitionReadDelay = 2 * time.Second })

	t.Run("existing topic", func(t *testing.T) {
		admin := new(mockTopicAdmin)
		admin.On("ReadPartitions", []string{"sms_topic"}).Return([]kafka.Partition{{Topic: "sms_topic"}}, nil).Once()

		require.NoError(t, createKafkaTopicIfNotExists(admin, "sms_topic", 3, 1, testLogger()))
		admin.AssertExpectations(t)
		admin.AssertNotCalled(t, "CreateTopics", mock.Anything)
	})

	t.Run("unknown topic is created with defaults", func(t *testing.T) {
		admin := new(mockTopicAdmin)
		admin.On("ReadPartitions", []string{"dlq"}).Return(nil, kafka.UnknownTopicOrPartition).Once()
		admin.On("CreateTopics", []kafka.TopicConfig{{Topic: "dlq", NumPartitions: 1, ReplicationFactor: 1}}).Return(nil).Once()

		require.NoError(t, createKafkaTopicIfNotExists(admin, "dlq", 0, 0, testLogger()))
		admin.AssertExpectations(t)
	})

	t.Run("transient read errors are retried", func(t *testing.T) {
		admin := new(mockTopicAdmin)
		admin.On("ReadPartitions", []string{"sms_topic"}).Return(nil, errors.New("broken pipe")).Twice()
		admin.On("ReadPartitions", []string{"sms_topic"}).Return([]kafka.Partition{{Topic: "sms_topic"}}, nil).Once()

		require.NoError(t, createKafkaTopicIfNotExists(admin, "sms_topic", 3, 1, testLogger()))
		admin.AssertExpectations(t)
	})

	t.Run("creation race is tolerated", func(t *testing.T) {
		admin := new(mockTopicAdmin)
		admin.On("ReadPartitions", []string{"t"}).Return(nil, kafka.UnknownTopicOrPartition).Once()
		admin.On("CreateTopics", mock.Anything).Return(kafka.TopicAlreadyExists).Once()

		require.NoError(t, createKafkaTopicIfNotExists(admin, "t", 1, 1, testLogger()))
	})

	t.Run("creation failure", func(t *testing.T) {
		admin := new(mockTopicAdmin)
		admin.On("ReadPartitions", []string{"t"}).Return(nil, kafka.UnknownTopicOrPartition).Once()
		admin.On("CreateTopics", mock.Anything).Return(kafka.InvalidReplicationFactor).Once()

		err := createKafkaTopicIfNotExists(admin, "t", 1, 3, testLogger())
		assert.ErrorIs(t, err, kafka.InvalidReplicationFactor)
	})
}

func TestEnsureTopics_NoBrokers(t *testing.T) {
	err := EnsureTopics(context.Background(), testLogger(), &config.KafkaConfig{Brokers: " "}, "sms_topic")
	assert.EqualError(t, err, "no kafka brokers configured")
}
