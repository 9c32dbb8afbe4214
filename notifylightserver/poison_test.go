//go:build integration

package notifylightserver_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/tinywideclouds/go-notifylight/internal/storage/memory"
	"github.com/tinywideclouds/go-notifylight/notifylightserver"
	"github.com/tinywideclouds/go-notifylight/notifylightserver/config"
	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

func TestNotifyLightServer_PoisonPill(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	t.Cleanup(cancel)

	logger := newTestLogger()
	projectID := "test-project-dlq"

	// 1. Setup Pub/Sub Emulator
	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	// 2. Arrange: main topic, DLQ topic, and subscriptions
	runID := uuid.NewString()
	mainTopicID := "notify-main-" + runID
	dlqTopicID := "notify-dlq-" + runID
	mainSubID := mainTopicID + "-sub"
	dlqSubID := dlqTopicID + "-sub"

	createPubsubResources(t, ctx, psClient, projectID, dlqTopicID, dlqSubID)
	dlqTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, dlqTopicID)

	mainTopicName := fmt.Sprintf("projects/%s/topics/%s", projectID, mainTopicID)
	_, err = psClient.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: mainTopicName})
	require.NoError(t, err)

	mainSubName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, mainSubID)
	_, err = psClient.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:  mainSubName,
		Topic: mainTopicName,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlqTopicName,
			MaxDeliveryAttempts: 5,
		},
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	})
	require.NoError(t, err)

	// 3. Arrange: service over in-memory stores
	fcmDispatcher := newMockDispatcher(-1)
	messages := memory.NewMessageStore()

	consumerCfg := *messagepipeline.NewGooglePubsubConsumerDefaults(mainSubID)
	consumer, err := messagepipeline.NewGooglePubsubConsumer(&consumerCfg, psClient, logger)
	require.NoError(t, err)

	svc, err := notifylightserver.New(
		&config.Config{ListenAddr: ":0", APIKeys: []string{"k"}, NumPipelineWorkers: 2},
		notifylightserver.Dependencies{
			Messages:    messages,
			Tokens:      memory.NewTokenStore(),
			Dispatchers: map[string]dispatch.Dispatcher{wire.PlatformAndroid: fcmDispatcher},
			Consumer:    consumer,
		},
		logger,
	)
	require.NoError(t, err)

	serviceCtx, serviceCancel := context.WithCancel(ctx)
	defer serviceCancel()
	go func() {
		if err := svc.Start(serviceCtx); err != nil && !errors.Is(err, context.Canceled) {
			t.Logf("service.Start() returned an error: %v", err)
		}
	}()
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	// 4. Act: valid JSON that fails validation (no recipients)
	poisonPayload := []byte(`{"title":"orphan","user_ids":[]}`)
	_, err = psClient.Publisher(mainTopicID).Publish(ctx, &pubsub.Message{Data: poisonPayload}).Get(ctx)
	require.NoError(t, err)

	// 5. Assert: the message arrives on the DLQ subscription
	dlqSub := psClient.Subscriber(dlqSubID)
	var wg sync.WaitGroup
	wg.Add(1)
	var receivedMsg *pubsub.Message

	go func() {
		defer wg.Done()
		cctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		err := dlqSub.Receive(cctx, func(ctx context.Context, msg *pubsub.Message) {
			msg.Ack()
			receivedMsg = msg
			cancel()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("DLQ Receive returned an unexpected error: %v", err)
		}
	}()

	wg.Wait()
	require.NotNil(t, receivedMsg, "Did not receive message on the DLQ subscription")
	assert.Equal(t, poisonPayload, receivedMsg.Data)

	// 6. Nothing was stored or dispatched
	assert.Equal(t, 0, fcmDispatcher.GetCallCount())
	stored, err := messages.ListMessages(ctx, "orphan", false)
	require.NoError(t, err)
	assert.Empty(t, stored)
}
