package main

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kwv/skylocate/locate"
)

// TestMQTTRoundTrip publishes observations to a live broker and waits for
// the located target to come back on the targets topic.
func TestMQTTRoundTrip(t *testing.T) {
	// Skip if not running integration tests
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = "tcp://localhost:1883"
		t.Setenv("MQTT_BROKER", broker)
	}
	t.Setenv("MQTT_CLIENT_ID", "skylocate-it-service")

	cfg := testConfig()
	cfg.MQTT = locate.MQTTConfig{
		ObservationTopic: "skylocate-test/observations/+",
		PublishPrefix:    "skylocate-test",
	}

	app := NewApp()
	app.Config = cfg
	app.Solver = locate.NewSolver(cfg.Solver)
	app.StateTracker = locate.NewStateTracker(time.Minute)

	client, err := locate.InitMQTT(cfg, app.handleObservations)
	if err != nil {
		t.Fatalf("InitMQTT: %v", err)
	}
	if client == nil {
		t.Fatal("InitMQTT returned no client")
	}
	defer client.Disconnect()
	app.MQTTClient = client
	app.Publisher = locate.NewPublisher(client.GetClient(), cfg.MQTT.PublishPrefix)

	waitFor(t, 10*time.Second, client.IsConnected, "service client never connected")

	// independent client playing the cameras and the consumer
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("skylocate-it-cameras")
	peer := mqtt.NewClient(opts)
	if token := peer.Connect(); token.WaitTimeout(10*time.Second) && token.Error() != nil {
		t.Fatalf("peer connect: %v", token.Error())
	}
	defer peer.Disconnect(250)

	received := make(chan locate.SolutionMessage, 1)
	token := peer.Subscribe("skylocate-test/targets", 1, func(_ mqtt.Client, msg mqtt.Message) {
		var sm locate.SolutionMessage
		if err := json.Unmarshal(msg.Payload(), &sm); err == nil && len(sm.Targets) > 0 {
			select {
			case received <- sm:
			default:
			}
		}
	})
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		t.Fatalf("peer subscribe: %v", token.Error())
	}

	for _, obs := range observationsOf(cfg.Cameras, targetA) {
		payload, _ := json.Marshal(map[string]float64{"azimuth": obs.Azimuth, "elevation": obs.Elevation})
		peer.Publish("skylocate-test/observations/"+obs.CameraID, 1, false, payload).WaitTimeout(5 * time.Second)
	}

	waitFor(t, 10*time.Second, func() bool { return app.StateTracker.ObservationCount() >= 3 },
		"observations never reached the state tracker")

	if _, err := app.solveBuffered(context.Background()); err != nil {
		t.Fatalf("solveBuffered: %v", err)
	}

	select {
	case sm := <-received:
		got := sm.Targets[0]
		if d := (locate.Position{X: got.X, Y: got.Y, Z: got.Z}).Vector().Sub(targetA).Norm(); d > 0.01 {
			t.Errorf("published target is %.3f m from the truth", d)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("no solution received on skylocate-test/targets")
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
