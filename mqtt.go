package kaiku

import (
	"encoding/json"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// FeedTopic is the wildcard subscription for the realtime message stream.
// The store publishes one event per change under kaiku/feed/<type>.
const FeedTopic = "kaiku/feed/#"

// Realtime bridges the MQTT push stream into the engine.
type Realtime struct {
	engine *Engine
	client mqtt.Client
}

func NewRealtime(engine *Engine, clientID string, host string, user string, pass string) *Realtime {
	rt := &Realtime{engine: engine}
	rt.client = initializeMQTT(rt.onConnectHandler(), clientID, host, user, pass)
	return rt
}

// Start connects to the broker. Subscriptions are re-established by the
// connect handler on every (re)connect.
func (rt *Realtime) Start() error {
	if token := rt.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (rt *Realtime) Stop() {
	rt.client.Disconnect(250)
}

func (rt *Realtime) onConnectHandler() mqtt.OnConnectHandler {
	var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
		logrus.Println("Connected to MQTT")

		if token := client.Subscribe(FeedTopic, 0, rt.feedHandler); token.Wait() && token.Error() != nil {
			logrus.WithError(token.Error()).Error("failed to subscribe to feed stream")
		}
	}
	return connectHandler
}

func (rt *Realtime) feedHandler(client mqtt.Client, msg mqtt.Message) {
	var event PushEvent
	if err := json.Unmarshal(msg.Payload(), &event); err != nil {
		logrus.Debugf("ignoring malformed push event on %s: %v", msg.Topic(), err)
		return
	}
	if event.Type == "" || (event.ID == "" && event.Message == nil) {
		logrus.Debugf("ignoring empty push event on %s", msg.Topic())
		return
	}
	rt.engine.OnEvent(event)
}

func initializeMQTT(onConnect mqtt.OnConnectHandler, clientID string, host string, user string, pass string) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(host)
	opts.SetClientID(clientID)
	opts.SetUsername(user)
	opts.SetPassword(pass)
	opts.SetAutoReconnect(true)
	opts.OnConnect = onConnect
	opts.OnConnectionLost = connectLostHandler
	return mqtt.NewClient(opts)
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	logrus.Printf("MQTT Connection lost: %v", err)
}
