package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUniqueTopicsDedupesAndTrims(t *testing.T) {
	require.Equal(t, []string{"lm-events"}, uniqueTopics(" lm-events ", "lm-events"))
	require.Equal(t, []string{"a", "b"}, uniqueTopics("a", "", "b"))
	require.Empty(t, uniqueTopics("", "  "))
}

func TestResourceName(t *testing.T) {
	c := &Client{projectID: "proj"}
	require.Equal(t, "projects/proj/topics/lm-delivery-events", c.resourceName("lm-delivery-events"))
	require.Equal(t, "projects/other/topics/custom", c.resourceName("projects/other/topics/custom"))
	require.Empty(t, c.resourceName("  "))
	require.Empty(t, (&Client{}).resourceName("x"))
}

func TestNilClientIsInert(t *testing.T) {
	var c *Client
	require.Nil(t, c.Publisher("x"))
	require.NoError(t, c.Close())
	require.Error(t, c.Ping(t.Context()))
}
