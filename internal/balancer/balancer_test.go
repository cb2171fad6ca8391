package balancer_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/sdn-load-balancer/internal/assignment"
	"github.com/angeloszaimis/sdn-load-balancer/internal/balancer"
	"github.com/angeloszaimis/sdn-load-balancer/internal/bridge"
	"github.com/angeloszaimis/sdn-load-balancer/internal/classifier"
	"github.com/angeloszaimis/sdn-load-balancer/internal/metrics"
	"github.com/angeloszaimis/sdn-load-balancer/internal/policy"
)

type fakeController struct {
	mutex      sync.Mutex
	policies   []policy.Policy
	packetOuts []bridge.PacketOut
	updateErr  error
	outErr     error
}

func (f *fakeController) UpdatePolicy(ctx context.Context, pol policy.Policy) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.policies = append(f.policies, pol)
	return f.updateErr
}

func (f *fakeController) PacketOut(ctx context.Context, pkt bridge.PacketOut) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.packetOuts = append(f.packetOuts, pkt)
	return f.outErr
}

func (f *fakeController) lastPolicy() policy.Policy {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.policies[len(f.policies)-1]
}

type recorder struct {
	mutex  sync.Mutex
	events []metrics.Event
}

func (r *recorder) Emit(event metrics.Event) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, event)
	return true
}

func (r *recorder) count(t metrics.EventType) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func tcpPacket(src uint16) bridge.PacketIn {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 100),
	}
	tcp := &layers.TCP{SrcPort: layers.TCPPort(src), DstPort: 80, SYN: true, Window: 1024}
	Expect(tcp.SetNetworkLayerForChecksum(ip)).To(Succeed())

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	Expect(gopacket.SerializeLayers(buf, opts, eth, ip, tcp)).To(Succeed())

	return bridge.PacketIn{SwitchID: 1, PortID: 1, Payload: bridge.Payload{Data: buf.Bytes()}}
}

func clientHeader(src uint16) policy.Header {
	return policy.Header{InPort: 1, EthType: policy.EthTypeIPv4, IPProto: policy.IPProtoTCP, TCPSrc: src, TCPDst: 80}
}

var _ = Describe("LoadBalancer", func() {
	var (
		lb         *balancer.LoadBalancer
		table      *assignment.Table
		controller *fakeController
		events     *recorder
		ctx        context.Context
	)

	BeforeEach(func() {
		var err error
		table, err = assignment.NewTable(assignment.ServerPool{10, 11})
		Expect(err).NotTo(HaveOccurred())

		controller = &fakeController{}
		events = &recorder{}
		ctx = context.Background()
		log := slog.New(slog.NewTextHandler(io.Discard, nil))

		lb = balancer.NewLoadBalancer(log, table, policy.NewCompiler(1), controller, events)
	})

	Describe("Connected", func() {
		It("should push the fallback-only policy", func() {
			Expect(lb.Connected(ctx)).To(Succeed())
			Expect(controller.policies).To(HaveLen(1))
			Expect(controller.policies[0].Routes).To(BeEmpty())
			Expect(controller.packetOuts).To(BeEmpty())
		})

		It("should report a failed push", func() {
			controller.updateErr = errors.New("connection refused")
			Expect(lb.Connected(ctx)).To(HaveOccurred())
			Expect(events.count(metrics.EventPolicyFailed)).To(Equal(1))
		})
	})

	Describe("PacketIn", func() {
		It("should balance connections round-robin and keep existing ones", func() {
			Expect(lb.PacketIn(ctx, tcpPacket(5001))).To(Succeed())
			Expect(controller.packetOuts[0].OutPort).To(Equal(10))

			pol := controller.lastPolicy()
			action, ok := pol.Evaluate(clientHeader(5001))
			Expect(ok).To(BeTrue())
			Expect(action.Port).To(Equal(assignment.Port(10)))

			reply, ok := pol.Evaluate(policy.Header{InPort: 10, EthType: policy.EthTypeIPv4, IPProto: policy.IPProtoTCP, TCPSrc: 80, TCPDst: 5001})
			Expect(ok).To(BeTrue())
			Expect(reply.Port).To(Equal(assignment.Port(1)))

			Expect(lb.PacketIn(ctx, tcpPacket(5002))).To(Succeed())
			Expect(controller.packetOuts[1].OutPort).To(Equal(11))

			Expect(lb.PacketIn(ctx, tcpPacket(5001))).To(Succeed())
			Expect(controller.packetOuts[2].OutPort).To(Equal(10))

			Expect(table.Cursor()).To(Equal(0))
			Expect(table.Len()).To(Equal(2))
			Expect(events.count(metrics.EventAssignmentCreated)).To(Equal(2))
		})

		It("should push the policy on every packet-in", func() {
			lb.PacketIn(ctx, tcpPacket(5001))
			lb.PacketIn(ctx, tcpPacket(5001))

			Expect(controller.policies).To(HaveLen(2))
			Expect(controller.policies[0]).To(Equal(controller.policies[1]))
		})

		It("should exclude known connections from the fallback", func() {
			lb.PacketIn(ctx, tcpPacket(5001))
			lb.PacketIn(ctx, tcpPacket(5002))

			pol := lb.Policy()
			Expect(pol.Fallback.Known).To(ConsistOf(classifier.FlowKey(5001), classifier.FlowKey(5002)))

			action, ok := pol.Evaluate(clientHeader(5003))
			Expect(ok).To(BeTrue())
			Expect(action.Kind).To(Equal(policy.ActionController))
		})

		It("should echo the packet back out with its ingress port and payload", func() {
			pkt := tcpPacket(5001)
			pkt.SwitchID = 42
			pkt.Payload.Buffered = true
			pkt.Payload.BufferID = 7

			Expect(lb.PacketIn(ctx, pkt)).To(Succeed())

			out := controller.packetOuts[0]
			Expect(out.SwitchID).To(Equal(uint64(42)))
			Expect(out.InPort).NotTo(BeNil())
			Expect(*out.InPort).To(Equal(1))
			Expect(out.Payload).To(Equal(pkt.Payload))
		})

		Context("with packets that carry no flow key", func() {
			It("should not create assignments or contact the controller", func() {
				pkt := bridge.PacketIn{SwitchID: 1, PortID: 1, Payload: bridge.Payload{Data: []byte{1, 2, 3}}}

				Expect(lb.PacketIn(ctx, pkt)).To(Succeed())
				Expect(table.Len()).To(Equal(0))
				Expect(controller.policies).To(BeEmpty())
				Expect(controller.packetOuts).To(BeEmpty())
				Expect(events.count(metrics.EventPacketIgnored)).To(Equal(1))
			})
		})

		Context("when the controller fails", func() {
			It("should still send the packet out when the policy push fails", func() {
				controller.updateErr = errors.New("boom")

				err := lb.PacketIn(ctx, tcpPacket(5001))
				Expect(err).To(MatchError(controller.updateErr))
				Expect(controller.packetOuts).To(HaveLen(1))
				Expect(table.Len()).To(Equal(1))
			})

			It("should keep reporting the last installed policy after a failed push", func() {
				Expect(lb.PacketIn(ctx, tcpPacket(5001))).To(Succeed())
				installed := lb.Policy()
				Expect(installed.Routes).To(HaveLen(2))

				controller.updateErr = errors.New("boom")
				Expect(lb.PacketIn(ctx, tcpPacket(5002))).To(HaveOccurred())

				Expect(lb.Policy()).To(Equal(installed))
				Expect(table.Len()).To(Equal(2))
			})

			It("should report a failed packet-out", func() {
				controller.outErr = errors.New("switch gone")

				err := lb.PacketIn(ctx, tcpPacket(5001))
				Expect(err).To(MatchError(controller.outErr))
				Expect(events.count(metrics.EventPacketOut)).To(Equal(0))
			})
		})

		It("should end with a policy matching the table under concurrent packet-ins", func() {
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				pkt := tcpPacket(uint16(6000 + i))
				wg.Add(1)
				go func() {
					defer wg.Done()
					lb.PacketIn(ctx, pkt)
				}()
			}
			wg.Wait()

			Expect(table.Len()).To(Equal(50))
			Expect(controller.lastPolicy().Routes).To(HaveLen(100))
			Expect(lb.Policy()).To(Equal(controller.lastPolicy()))
		})
	})

	Describe("NewLoadBalancer", func() {
		It("should accept a nil recorder", func() {
			log := slog.New(slog.NewTextHandler(io.Discard, nil))
			quiet := balancer.NewLoadBalancer(log, table, policy.NewCompiler(1), controller, nil)
			Expect(quiet.PacketIn(ctx, tcpPacket(5001))).To(Succeed())
		})

		It("should start with the fallback-only policy", func() {
			Expect(lb.Policy().Routes).To(BeEmpty())
			Expect(lb.Policy().Fallback.InPort).To(Equal(assignment.Port(1)))
		})
	})
})
