package qbsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/fieldlinehq/fsm_backend/config"
	"github.com/gin-gonic/gin"
)

func PublishSyncRun(ctx context.Context, runId uint, connectionId uint) error {
	topicName := strings.TrimSpace(os.Getenv("QB_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "quickbooks-sync"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("QB_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{
		RunId:        runId,
		ConnectionId: connectionId,
	}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// StartPullWorker consumes sync-run messages from a pull subscription,
// for deployments without a push-capable ingress. Blocks until ctx is done.
func StartPullWorker(ctx context.Context) error {
	topicName := strings.TrimSpace(os.Getenv("QB_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "quickbooks-sync"
	}
	subName := strings.TrimSpace(os.Getenv("QB_SYNC_SUBSCRIPTION"))
	if subName == "" {
		subName = topicName + "-worker"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, topicName)
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(client, subName, topic)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var payload SyncPubSubPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.RunId == 0 {
			msg.Ack()
			return
		}
		if err := processSyncRun(ctx, payload); err != nil {
			config.LogError(config.GetLogger(), "qbsync", "StartPullWorker", "process sync run", payload.RunId, err)
		}
		msg.Ack()
	})
}

func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_QB_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 {
			c.Status(204)
			return
		}

		_ = processSyncRun(c.Request.Context(), payload)
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
