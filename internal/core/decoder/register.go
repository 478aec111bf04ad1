package decoder

import (
	"fmt"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/internal/log"
	_ "firestige.xyz/pktkit/internal/plugin" // installs the process registry
	"firestige.xyz/pktkit/pkg/plugin"
)

type binding struct {
	kind      core.Kind
	code      core.Code
	dissector plugin.Dissector
}

func builtinBindings() []binding {
	sip := newSipDissector()
	return []binding{
		// link types
		{core.KindLink, core.Code(core.LinkTypeNull), loopbackDissector},
		{core.KindLink, core.Code(core.LinkTypeEthernet), ethernetDissector},
		{core.KindLink, core.Code(core.LinkTypeRawAlt), rawIPDissector},
		{core.KindLink, core.Code(core.LinkTypeRaw), rawIPDissector},
		{core.KindLink, core.Code(core.LinkTypeLoop), loopbackDissector},
		{core.KindLink, core.Code(core.LinkTypeLinuxSLL), sllDissector},
		{core.KindLink, core.Code(core.LinkTypeIPv4), ipv4Dissector},
		{core.KindLink, core.Code(core.LinkTypeIPv6), ipv6Dissector},

		// EtherTypes
		{core.KindEtherType, etherTypeIPv4, ipv4Dissector},
		{core.KindEtherType, etherTypeARP, arpDissector},
		{core.KindEtherType, etherTypeTEB, ethernetDissector},
		{core.KindEtherType, etherTypeRARP, arpDissector},
		{core.KindEtherType, etherTypeVLAN, vlanDissector},
		{core.KindEtherType, etherTypeIPv6, ipv6Dissector},
		{core.KindEtherType, etherTypeQinQ, vlanDissector},

		// IP protocols
		{core.KindIPProto, protocolICMP, icmpDissector},
		{core.KindIPProto, protocolIPIP, ipv4Dissector},
		{core.KindIPProto, protocolTCP, tcpDissector},
		{core.KindIPProto, protocolUDP, udpDissector},
		{core.KindIPProto, protocolIPv6, ipv6Dissector},
		{core.KindIPProto, protocolGRE, greDissector},
		{core.KindIPProto, protocolICMPv6, icmpv6Dissector},

		// ports
		{core.KindUDPPort, dnsPort, dnsDissector},
		{core.KindTCPPort, dnsPort, dnsDissector},
		{core.KindTCPPort, 80, httpDissector},
		{core.KindTCPPort, 8080, httpDissector},
		{core.KindUDPPort, sipPort, sip},
		{core.KindTCPPort, sipPort, sip},
		{core.KindUDPPort, vxlanPort, vxlanDissector},
		{core.KindUDPPort, genevePort, geneveDissector},
	}
}

// RegisterBuiltins registers every built-in dissector under its well-known
// codes.
func RegisterBuiltins(reg plugin.Registry) error {
	for _, b := range builtinBindings() {
		if err := reg.Register(b.kind, b.code, b.dissector); err != nil {
			return fmt.Errorf("register %s at %s/%d: %w", b.dissector.Name(), b.kind, b.code, err)
		}
	}
	return nil
}

func init() {
	if err := RegisterBuiltins(plugin.Default()); err != nil {
		log.GetLogger().WithError(err).Error("built-in dissector registration failed")
	}
}
