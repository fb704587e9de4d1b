package pubsub

import (
	"context"
	"testing"

	"github.com/angelmondragon/poflow-backend/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestTopicResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/po-events", topicResourceName("p1", "po-events"))
	assert.Equal(t, "projects/other/topics/x", topicResourceName("p1", "projects/other/topics/x"))
	assert.Equal(t, "", topicResourceName("p1", "  "))
	assert.Equal(t, "", topicResourceName("", "po-events"))
}

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{NotificationTopic: "t"}, nil)
	assert.ErrorIs(t, err, errProjectIDRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	_, err := c.Publish(context.Background(), []byte("{}"), nil)
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}
