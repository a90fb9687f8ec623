// Command p2pctl is the host-side process for a robot's P2P link: it owns
// the serial transport, runs the packet stream state machines, drives the
// two wheel speed controllers, and exposes an interactive shell plus
// telemetry bridges for observing it all from outside the process.
package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/tinywheel/p2pbot/pkg/bridge/mqtt"
	"github.com/tinywheel/p2pbot/pkg/bridge/wsbridge"
	"github.com/tinywheel/p2pbot/pkg/framework"
	"github.com/tinywheel/p2pbot/pkg/hostid"
	"github.com/tinywheel/p2pbot/pkg/p2p"
	"github.com/tinywheel/p2pbot/pkg/p2p/appproto"
	"github.com/tinywheel/p2pbot/pkg/transport/serialport"
	"github.com/tinywheel/p2pbot/pkg/wheel"
)

// endpoint bundles everything main needs to reach into from both the
// background runnables and the interactive shell commands.
type endpoint struct {
	transport *serialport.Port
	in        *p2p.InputStream
	out       *p2p.OutputStream
	inBuffer  *p2p.PriorityBuffer
	outBuffer *p2p.PriorityBuffer

	leftWheel  *wheel.WheelSpeedController
	rightWheel *wheel.WheelSpeedController

	mqttPublisher *mqtt.Publisher
	wsBridge      *wsbridge.Bridge
}

func main() {
	conf := SetupFlags()
	flag.Parse()

	transport, err := serialport.Open(conf.SerialPort, conf.BaudRate)
	if err != nil {
		glog.Fatalf("open %s: %v", conf.SerialPort, err)
	}

	ep := &endpoint{
		transport: transport,
		inBuffer:  p2p.NewPriorityBuffer(),
		outBuffer: p2p.NewPriorityBuffer(),
		wsBridge:  wsbridge.New(),
	}
	ep.in = p2p.NewInputStream(transport, ep.inBuffer)
	ep.out = p2p.NewOutputStream(transport, ep.outBuffer)

	ep.leftWheel = wheel.NewWheelSpeedController(
		defaultWheelModel(), wheelRadiusMeters, radiansPerTick,
		pidKp, pidKi, pidKd,
		(&wheel.TickCounter{}).Getter(),
		func(float32) {}, // wired to the real motor driver on hardware
		nowNanos,
	)
	ep.rightWheel = wheel.NewWheelSpeedController(
		defaultWheelModel(), wheelRadiusMeters, radiansPerTick,
		pidKp, pidKi, pidKd,
		(&wheel.TickCounter{}).Getter(),
		func(float32) {},
		nowNanos,
	)

	if !mqtt.IsBrokerless(conf.MQTTURL) {
		id := hostid.MustGet("p2pctl")
		pub, err := mqtt.NewPublisher(conf.MQTTURL, id)
		if err != nil {
			glog.Warningf("mqtt: connect failed, telemetry disabled: %v", err)
		} else {
			ep.mqttPublisher = pub
			defer pub.Close()
		}
	}

	runner := framework.NewRunnerWith(context.Background()).HandleSignals()
	runner.Go(
		framework.NamedRun("input-pump", runnableFunc(ep.runInputPump)),
		framework.NamedRun("output-pump", runnableFunc(ep.runOutputPump)),
		framework.NamedRun("telemetry", runnableFunc(ep.runTelemetry)),
		framework.NamedRun("ws-http", runnableFunc(ep.runHTTP(conf.HTTPAddr))),
	)

	shell := newShell(ep)
	runShell(shell, flag.Args())

	if err := runner.Wait(); err != nil {
		glog.Warningf("runner exited with errors: %v", err)
	}
}

// runnableFunc adapts a plain function to framework.Runnable.
type runnableFunc func(context.Context) error

func (f runnableFunc) Run(ctx context.Context) error { return f(ctx) }

func (e *endpoint) runInputPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		e.in.Run()
		if priority, pkt, ok := e.inBuffer.OldestWithPriority(); ok {
			content := append([]byte{}, pkt.WireContent()...)
			e.inBuffer.Consume()
			if e.mqttPublisher != nil {
				e.mqttPublisher.PublishPacket(priority, content)
			}
			e.wsBridge.Publish(content)
			e.handleApplicationContent(content)
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

func (e *endpoint) handleApplicationContent(content []byte) {
	if len(content) == 0 {
		return
	}
	switch content[0] {
	case appproto.CommandTimeSyncRequest, appproto.CommandTimeSyncReply:
		// A real deployment would decode and act on these; p2pctl only
		// forwards them to the telemetry bridges, which runInputPump has
		// already done before calling here.
	}
}

func (e *endpoint) runOutputPump(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		wait := e.out.Run(nowNanos())
		if wait > 0 {
			time.Sleep(time.Duration(wait))
		}
	}
}

func (e *endpoint) runTelemetry(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	last := nowNanos()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			now := t.UnixNano()
			dt := float64(now-last) / 1e9
			last = now
			e.leftWheel.RunAfterPeriod(now, dt)
			e.rightWheel.RunAfterPeriod(now, dt)
			if e.mqttPublisher != nil {
				e.mqttPublisher.PublishWheelTelemetry("left", telemetryOf(e.leftWheel))
				e.mqttPublisher.PublishWheelTelemetry("right", telemetryOf(e.rightWheel))
			}
		}
	}
}

func (e *endpoint) runHTTP(addr string) func(context.Context) error {
	return func(ctx context.Context) error {
		mux := http.NewServeMux()
		mux.Handle("/ws", e.wsBridge.Handler())
		server := &http.Server{Addr: addr, Handler: mux}
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()
		select {
		case <-ctx.Done():
			return server.Close()
		case err := <-errCh:
			return err
		}
	}
}

func nowNanos() int64 { return time.Now().UnixNano() }

func telemetryOf(c *wheel.WheelSpeedController) mqtt.WheelTelemetry {
	return mqtt.WheelTelemetry{
		TargetLinearSpeed:   c.TargetLinearSpeed(),
		MeasuredLinearSpeed: c.MeasuredLinearSpeed(),
		DutyCycle:           c.LastDutyCycle(),
	}
}

const (
	wheelRadiusMeters = 0.033
	radiansPerTick    = 2 * 3.14159265358979 / 20 // 20 encoder ticks per revolution
	pidKp             = 4.0
	pidKi             = 1.5
	pidKd             = 0.0
)

func defaultWheelModel() wheel.Model {
	return wheel.Model{
		TimeConstant:    0.2,
		DutyCycleOffset: 0.05,
		Factor:          1.5,
		SpeedOffset:     0.5,
	}
}
