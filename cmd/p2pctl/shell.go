package main

import (
	"flag"
	"fmt"

	"github.com/abiosoft/ishell"

	"github.com/tinywheel/p2pbot/pkg/p2p"
	"github.com/tinywheel/p2pbot/pkg/p2p/appproto"
)

const endpointKey = "$endpoint"

var (
	evalOnly bool
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
}

func endpointFrom(c *ishell.Context) *endpoint {
	return c.Get(endpointKey).(*endpoint)
}

// newShell builds the interactive ishell.Shell wired to ep, with a
// "timesync" command for probing round-trip latency and a "status"
// command for inspecting buffer occupancy and wheel telemetry.
func newShell(ep *endpoint) *ishell.Shell {
	s := ishell.New()
	s.Set(endpointKey, ep)
	s.SetPrompt("p2pctl> ")
	s.AddCmd(&timeSyncCmd)
	s.AddCmd(&statusCmd)
	return s
}

func runShell(s *ishell.Shell, args []string) {
	if len(args) > 0 {
		if err := s.Process(args...); err != nil {
			fmt.Println(err)
		}
		return
	}
	if !evalOnly {
		s.Run()
	}
}

var timeSyncCmd = ishell.Cmd{
	Name: "timesync",
	Help: "send a time-sync request at the given priority (low|medium|high)",
	Func: func(c *ishell.Context) {
		ep := endpointFrom(c)
		priority := p2p.PriorityMedium
		if len(c.Args) > 0 {
			switch c.Args[0] {
			case "low":
				priority = p2p.PriorityLow
			case "medium":
				priority = p2p.PriorityMedium
			case "high":
				priority = p2p.PriorityHigh
			default:
				c.Err(fmt.Errorf("unknown priority %q", c.Args[0]))
				return
			}
		}
		res := ep.out.NewPacket(priority)
		if !res.Ok() {
			c.Err(fmt.Errorf("send buffer full at priority %s", priority))
			return
		}
		pkt := res.Value()
		appproto.EncodeTimeSyncRequest(pkt, appproto.TimeSync{SyncEdgeLocalTimestampNs: uint64(nowNanos())})
		if !ep.out.Commit(priority) {
			c.Err(fmt.Errorf("commit failed"))
			return
		}
		c.Println("sent")
	},
}

var statusCmd = ishell.Cmd{
	Name: "status",
	Help: "print buffer occupancy and wheel telemetry",
	Func: func(c *ishell.Context) {
		ep := endpointFrom(c)
		for _, p := range []p2p.Priority{p2p.PriorityLow, p2p.PriorityMedium, p2p.PriorityHigh} {
			c.Printf("in[%s]=%d out[%s]=%d\n", p, ep.inBuffer.Len(p), p, ep.outBuffer.Len(p))
		}
		c.Printf("left:  target=%.3f measured=%.3f duty=%.3f\n",
			ep.leftWheel.TargetLinearSpeed(), ep.leftWheel.MeasuredLinearSpeed(), ep.leftWheel.LastDutyCycle())
		c.Printf("right: target=%.3f measured=%.3f duty=%.3f\n",
			ep.rightWheel.TargetLinearSpeed(), ep.rightWheel.MeasuredLinearSpeed(), ep.rightWheel.LastDutyCycle())
	},
}
