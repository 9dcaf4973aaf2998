package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type deployed struct {
	Worker string `json:"worker"`
}

func (d deployed) Attributes() map[string]string {
	return map[string]string{"worker": d.Worker}
}

func newTopic(t *testing.T) (*pstest.Server, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "edge-sitemaps", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "sitemaps-deployed")
	require.NoError(t, err)
	t.Cleanup(topic.Stop)
	return srv, topic
}

func TestPublishSendsJSONWithAttributes(t *testing.T) {
	t.Parallel()

	srv, topic := newTopic(t)
	id, err := New(topic).Publish(context.Background(), "ignored", deployed{Worker: "casino"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"worker":"casino"}`, string(msgs[0].Data))
	assert.Equal(t, "casino", msgs[0].Attributes["worker"])
}

func TestPublishRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "x", deployed{})
	require.Error(t, err)
}
