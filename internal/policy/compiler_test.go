package policy_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/sdn-load-balancer/internal/assignment"
	"github.com/angeloszaimis/sdn-load-balancer/internal/classifier"
	"github.com/angeloszaimis/sdn-load-balancer/internal/policy"
)

func tcpHeader(inPort assignment.Port, src, dst uint16) policy.Header {
	return policy.Header{
		InPort:  inPort,
		EthType: policy.EthTypeIPv4,
		IPProto: policy.IPProtoTCP,
		TCPSrc:  src,
		TCPDst:  dst,
	}
}

var _ = Describe("Compiler", func() {
	var compiler *policy.Compiler

	BeforeEach(func() {
		compiler = policy.NewCompiler(1)
	})

	Describe("Compile", func() {
		Context("with an empty table", func() {
			It("should produce only the fallback", func() {
				pol := compiler.Compile(nil)
				Expect(pol.Routes).To(BeEmpty())
				Expect(pol.Fallback.Known).To(BeEmpty())
				Expect(pol.RuleCount()).To(Equal(1))
			})

			It("should send every client TCP packet to the controller", func() {
				pol := compiler.Compile(nil)
				action, ok := pol.Evaluate(tcpHeader(1, 5001, 80))
				Expect(ok).To(BeTrue())
				Expect(action.Kind).To(Equal(policy.ActionController))
				Expect(action.Pipe).To(Equal(policy.ControllerPipe))
			})
		})

		Context("with two connections", func() {
			var pol policy.Policy

			BeforeEach(func() {
				pol = compiler.Compile([]assignment.Assignment{
					{Key: 5001, Server: 10},
					{Key: 5002, Server: 11},
				})
			})

			It("should emit two routes per connection", func() {
				Expect(pol.Routes).To(ConsistOf(
					policy.Route{Direction: policy.ClientToServer, InPort: 1, Key: 5001, OutPort: 10},
					policy.Route{Direction: policy.ServerToClient, InPort: 10, Key: 5001, OutPort: 1},
					policy.Route{Direction: policy.ClientToServer, InPort: 1, Key: 5002, OutPort: 11},
					policy.Route{Direction: policy.ServerToClient, InPort: 11, Key: 5002, OutPort: 1},
				))
				Expect(pol.RuleCount()).To(Equal(5))
			})

			It("should exclude exactly the known keys from the fallback", func() {
				Expect(pol.Fallback.InPort).To(Equal(assignment.Port(1)))
				Expect(pol.Fallback.Known).To(ConsistOf(classifier.FlowKey(5001), classifier.FlowKey(5002)))
			})

			It("should forward client traffic to the assigned server", func() {
				action, ok := pol.Evaluate(tcpHeader(1, 5001, 80))
				Expect(ok).To(BeTrue())
				Expect(action).To(Equal(policy.Action{Kind: policy.ActionForward, Port: 10}))
			})

			It("should forward server replies back to the client port", func() {
				action, ok := pol.Evaluate(tcpHeader(11, 80, 5002))
				Expect(ok).To(BeTrue())
				Expect(action).To(Equal(policy.Action{Kind: policy.ActionForward, Port: 1}))
			})

			It("should send an unknown source port to the controller", func() {
				action, ok := pol.Evaluate(tcpHeader(1, 5003, 80))
				Expect(ok).To(BeTrue())
				Expect(action.Kind).To(Equal(policy.ActionController))
			})

			It("should drop replies from the wrong server", func() {
				_, ok := pol.Evaluate(tcpHeader(10, 80, 5002))
				Expect(ok).To(BeFalse())
			})

			It("should drop non-IPv4 frames", func() {
				h := tcpHeader(1, 5001, 80)
				h.EthType = 0x0806
				_, ok := pol.Evaluate(h)
				Expect(ok).To(BeFalse())
			})

			It("should drop non-TCP IPv4 traffic", func() {
				h := tcpHeader(1, 5001, 80)
				h.IPProto = 17
				_, ok := pol.Evaluate(h)
				Expect(ok).To(BeFalse())
			})
		})

		It("should be independent of snapshot order", func() {
			a := []assignment.Assignment{{Key: 3, Server: 10}, {Key: 1, Server: 11}, {Key: 2, Server: 12}}
			b := []assignment.Assignment{{Key: 2, Server: 12}, {Key: 3, Server: 10}, {Key: 1, Server: 11}}

			Expect(compiler.Compile(a)).To(Equal(compiler.Compile(b)))
		})

		It("should give equal policies when compiled twice", func() {
			snap := []assignment.Assignment{{Key: 9, Server: 10}, {Key: 4, Server: 11}}
			Expect(compiler.Compile(snap)).To(Equal(compiler.Compile(snap)))
		})

		It("should not modify the snapshot", func() {
			snap := []assignment.Assignment{{Key: 9, Server: 10}, {Key: 4, Server: 11}}
			compiler.Compile(snap)
			Expect(snap[0].Key).To(Equal(classifier.FlowKey(9)))
		})

		It("should panic on a duplicated flow key", func() {
			snap := []assignment.Assignment{{Key: 9, Server: 10}, {Key: 9, Server: 11}}
			Expect(func() { compiler.Compile(snap) }).To(Panic())
		})

		It("should compile a table built by round-robin", func() {
			table, err := assignment.NewTable(assignment.ServerPool{10, 11})
			Expect(err).NotTo(HaveOccurred())
			table.Resolve(5001)
			table.Resolve(5002)

			pol := compiler.Compile(table.Assignments())
			for _, a := range table.Assignments() {
				action, ok := pol.Evaluate(tcpHeader(1, uint16(a.Key), 80))
				Expect(ok).To(BeTrue())
				Expect(action.Port).To(Equal(a.Server))
			}
		})
	})

	Describe("MarshalJSON", func() {
		It("should encode the fallback-only policy", func() {
			data, err := json.Marshal(compiler.Compile(nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(MatchJSON(`{
				"type": "seq",
				"pols": [
					{"type": "filter", "pred": {"type": "test", "header": "ethtype", "value": 2048}},
					{"type": "union", "pols": [
						{"type": "seq", "pols": [
							{"type": "filter", "pred": {"type": "and", "preds": [
								{"type": "test", "header": "location", "value": {"type": "physical", "port": 1}},
								{"type": "test", "header": "ipProto", "value": 6},
								{"type": "neg", "pred": {"type": "false"}}
							]}},
							{"type": "mod", "header": "location", "value": {"type": "pipe", "name": "http"}}
						]}
					]}
				]
			}`))
		})

		It("should encode a route by TCP destination port for replies", func() {
			pol := compiler.Compile([]assignment.Assignment{{Key: 5001, Server: 10}})
			data, err := json.Marshal(pol)
			Expect(err).NotTo(HaveOccurred())

			var decoded map[string]any
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())

			pols := decoded["pols"].([]any)
			union := pols[1].(map[string]any)["pols"].([]any)
			Expect(union).To(HaveLen(3))

			reply := union[1].(map[string]any)["pols"].([]any)
			match := reply[0].(map[string]any)["pred"].(map[string]any)["preds"].([]any)
			Expect(match[2]).To(Equal(map[string]any{
				"type": "test", "header": "tcpdstport", "value": float64(5001),
			}))
		})

		It("should keep port zero in the encoding", func() {
			pol := compiler.Compile([]assignment.Assignment{{Key: 0, Server: 10}})
			data, err := json.Marshal(pol)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`{"type":"test","header":"tcpsrcport","value":0}`))
		})
	})
})
