//go:build integration

package mqtt

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/loadshed-mqtt/core/homie"
)

// TestIntegrationAnnounce announces a device on a real Mosquitto broker and
// reads the retained tree back.
func TestIntegrationAnnounce(t *testing.T) {
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:1.6",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "1883")
	require.NoError(t, err)
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())

	dev := homie.Device{
		BaseTopic: "homie", ID: "eskomsepush", Name: "Eskom Loadshedding Schedule", Version: "4.0.0",
		Nodes: []homie.Node{{ID: "status", Name: "Status", Properties: []homie.Property{
			{ID: "loadshedding", Name: "Current Loadshedding", Datatype: homie.TypeBoolean, Retained: true},
		}}},
	}
	cfg := Config{
		Broker: broker, ClientID: "publisher", QoS: 1, Retain: true,
		WillTopic: dev.StateTopic(), WillPayload: string(homie.StateLost),
	}
	cli, err := Connect(ctx, cfg, WithSubscription(dev.SetTopicFilter()))
	require.NoError(t, err)
	defer cli.Disconnect()

	require.NoError(t, dev.Announce(cli))
	require.NoError(t, dev.PublishValues(cli, "status", []homie.Value{{Property: "loadshedding", Payload: "false"}}))

	var mu sync.Mutex
	got := map[string]string{}
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("reader"))
	token := sub.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	defer sub.Disconnect(100)
	token = sub.Subscribe("homie/eskomsepush/#", 1, func(_ paho.Client, m paho.Message) {
		mu.Lock()
		got[m.Topic()] = string(m.Payload())
		mu.Unlock()
	})
	require.True(t, token.WaitTimeout(5*time.Second))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got["homie/eskomsepush/$state"] == "ready" && got["homie/eskomsepush/status/loadshedding"] == "false"
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "4.0.0", got["homie/eskomsepush/$homie"])
	assert.Equal(t, "status", got["homie/eskomsepush/$nodes"])
	assert.Equal(t, "boolean", got["homie/eskomsepush/status/loadshedding/$datatype"])
}
