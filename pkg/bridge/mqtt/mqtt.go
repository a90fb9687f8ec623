// Package mqtt publishes P2P packet and wheel controller telemetry to an
// MQTT broker, so a robot's traffic and control loop can be observed
// remotely without attaching to its serial console.
package mqtt

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/tinywheel/p2pbot/pkg/p2p"
)

// publishWaitTimeout bounds how long publish blocks for broker
// acknowledgement before giving up on logging a failure for this message.
const publishWaitTimeout = 500 * time.Millisecond

// Publisher wraps a paho MQTT client, publishing under a topic prefix of
// hosts/<hostID>/.
type Publisher struct {
	client      paho.Client
	topicPrefix string
}

// ClientOptionsFromURL builds paho.ClientOptions from a broker URL of the
// form mqtt://[user[:pass]@]host:port[?client-id=...], mirroring how a
// broker address is conventionally passed to paho on the command line.
func ClientOptionsFromURL(brokerURL string) (*paho.ClientOptions, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, err
	}
	scheme := u.Scheme
	if scheme == "" || scheme == "mqtt" {
		scheme = "tcp"
	}
	opts := paho.NewClientOptions()
	opts.AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}
	return opts, nil
}

// NewPublisher connects a Publisher scoped to hosts/<hostID>/.
func NewPublisher(brokerURL, hostID string) (*Publisher, error) {
	opts, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	prefix := "hosts/" + hostID + "/"
	return &Publisher{client: client, topicPrefix: prefix}, nil
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func (p *Publisher) publish(topic string, payload []byte) {
	token := p.client.Publish(p.topicPrefix+topic, 0, false, payload)
	if !token.WaitTimeout(publishWaitTimeout) {
		glog.Warningf("mqtt: publish %q timed out waiting for ack", topic)
		return
	}
	if err := token.Error(); err != nil {
		glog.Warningf("mqtt: publish %q failed: %v", topic, err)
	}
}

// PublishPacket publishes a received packet's content under
// p2p/<priority>, for passive monitoring of on-wire traffic.
func (p *Publisher) PublishPacket(priority p2p.Priority, content []byte) {
	p.publish(fmt.Sprintf("p2p/%s", priority), content)
}

// WheelTelemetry is one wheel controller's instantaneous state, as
// reported after each control period.
type WheelTelemetry struct {
	TargetLinearSpeed   float64
	MeasuredLinearSpeed float64
	DutyCycle           float64
}

// PublishWheelTelemetry publishes a wheel's telemetry under
// wheel/<name>/telemetry as little-endian float64 triples, avoiding a
// text encoding dependency for a fixed, known-shape payload.
func (p *Publisher) PublishWheelTelemetry(name string, t WheelTelemetry) {
	payload := make([]byte, 24)
	binary.LittleEndian.PutUint64(payload[0:8], math.Float64bits(t.TargetLinearSpeed))
	binary.LittleEndian.PutUint64(payload[8:16], math.Float64bits(t.MeasuredLinearSpeed))
	binary.LittleEndian.PutUint64(payload[16:24], math.Float64bits(t.DutyCycle))
	p.publish("wheel/"+name+"/telemetry", payload)
}

// IsBrokerless reports whether brokerURL is empty or whitespace-only, the
// convention cmd/p2pctl uses to mean "telemetry publishing disabled".
func IsBrokerless(brokerURL string) bool {
	return strings.TrimSpace(brokerURL) == ""
}
