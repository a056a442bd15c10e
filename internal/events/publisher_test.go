package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/maltedev/catalog-crawler/internal/models"
	"github.com/maltedev/catalog-crawler/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func records() []models.ProductRecord {
	a := models.NewProductRecord("https://shop.test/p/1")
	a.SKU, a.Brand, a.Name, a.CategoryID = "1", "Imperial", "Apples", "produce"
	b := models.NewProductRecord("https://shop.test/p/2")
	b.SKU, b.CategoryID = "2", "produce"
	return []models.ProductRecord{a, b}
}

func TestStreamPublisher_Persist(t *testing.T) {
	client := &MockRedisClient{}
	var sent []*redis.XAddArgs
	client.On("XAdd", mock.Anything, mock.AnythingOfType("*redis.XAddArgs")).
		Run(func(args mock.Arguments) { sent = append(sent, args.Get(1).(*redis.XAddArgs)) }).
		Return(nil)

	publisher := NewStreamPublisher(client, "run-1", PublisherConfig{MaxLen: 10000}, nil)
	publisher.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, publisher.Persist(context.Background(), records()))

	require.Len(t, sent, 3)
	for _, args := range sent {
		assert.Equal(t, DefaultStream, args.Stream)
		assert.Equal(t, int64(10000), args.MaxLen)
		assert.True(t, args.Approx)
	}

	first := sent[0].Values.(map[string]interface{})
	assert.Equal(t, "PRODUCT_EXTRACTED", first["type"])
	assert.Equal(t, "1", first["aggregate_id"])
	assert.Equal(t, "run-1", first["run_id"])

	var payload ProductExtractedPayload
	require.NoError(t, json.Unmarshal([]byte(first["data"].(string)), &payload))
	assert.Equal(t, "Apples", payload.Name)
	assert.Equal(t, models.Unknown, payload.Packaging)
	assert.Equal(t, 3, payload.ValidFields)
	assert.Equal(t, "produce", payload.CategoryID)
	assert.NotEmpty(t, payload.EventID)

	last := sent[2].Values.(map[string]interface{})
	assert.Equal(t, "CRAWL_COMPLETED", last["type"])
	var done CrawlCompletedPayload
	require.NoError(t, json.Unmarshal([]byte(last["data"].(string)), &done))
	assert.Equal(t, 2, done.Records)
}

func TestStreamPublisher_StopsOnFirstError(t *testing.T) {
	client := &MockRedisClient{}
	client.On("XAdd", mock.Anything, mock.Anything).Return(errors.New("READONLY replica")).Once()

	err := NewStreamPublisher(client, "run-1", PublisherConfig{Stream: "stream:test"}, nil).
		Persist(context.Background(), records())

	assert.ErrorContains(t, err, "https://shop.test/p/1")
	assert.ErrorContains(t, err, "READONLY replica")
	client.AssertNumberOfCalls(t, "XAdd", 1)
}

func TestStreamPublisher_Empty(t *testing.T) {
	client := &MockRedisClient{}

	err := NewStreamPublisher(client, "run-1", PublisherConfig{}, nil).Persist(context.Background(), nil)

	assert.ErrorIs(t, err, storage.ErrNoRecords)
	client.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
}

func TestStreamPublisher_NoTrimByDefault(t *testing.T) {
	client := &MockRedisClient{}
	client.On("XAdd", mock.Anything, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		return args.MaxLen == 0 && !args.Approx && args.Stream == "stream:test"
	})).Return(nil)
	client.On("Close").Return(nil)

	publisher := NewStreamPublisher(client, "run-1", PublisherConfig{Stream: "stream:test"}, nil)
	require.NoError(t, publisher.Persist(context.Background(), records()[:1]))
	require.NoError(t, publisher.Close())

	client.AssertNumberOfCalls(t, "XAdd", 2)
	client.AssertExpectations(t)
}
