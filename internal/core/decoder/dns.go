package decoder

import (
	"encoding/binary"
	"net/netip"
	"strings"

	"golang.org/x/net/dns/dnsmessage"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/pkg/plugin"
)

const (
	dnsPort      = 53
	dnsHeaderLen = 12
)

var dnsDissector = plugin.NewDissector("dns", core.StratumApplication, dissectDNS)

// dissectDNS decodes the header, questions and answers of a DNS message
// with dnsmessage. Over TCP the message carries a 2-byte length prefix.
// Authority and additional records stay in the layer bytes.
func dissectDNS(cur *core.Cursor, ctx *plugin.Context) (plugin.Result, error) {
	prefix := 0
	if ctx.Parent == "tcp" {
		msgLen, err := cur.Uint16(binary.BigEndian)
		if err != nil {
			return plugin.Result{}, err
		}
		if int(msgLen) > cur.Remaining() {
			return plugin.Result{}, core.Truncatedf("DNS message of %d bytes, %d in segment", msgLen, cur.Remaining())
		}
		cur.Limit(int(msgLen))
		prefix = 2
	}

	msg := cur.Rest()
	// dnsmessage hides the section counts, so the fixed header is read here too.
	hdr, err := cur.Peek(dnsHeaderLen)
	if err != nil {
		return plugin.Result{}, err
	}

	var p dnsmessage.Parser
	h, err := p.Start(msg)
	if err != nil {
		return plugin.Result{}, dnsError("header", err)
	}

	fields := core.Fields{
		"id":      h.ID,
		"qr":      h.Response,
		"opcode":  uint8(h.OpCode),
		"aa":      h.Authoritative,
		"tc":      h.Truncated,
		"rd":      h.RecursionDesired,
		"ra":      h.RecursionAvailable,
		"rcode":   uint8(h.RCode),
		"qdcount": binary.BigEndian.Uint16(hdr[4:6]),
		"ancount": binary.BigEndian.Uint16(hdr[6:8]),
		"nscount": binary.BigEndian.Uint16(hdr[8:10]),
		"arcount": binary.BigEndian.Uint16(hdr[10:12]),
	}

	qs, err := p.AllQuestions()
	if err != nil {
		return plugin.Result{}, dnsError("question", err)
	}
	questions := make([]core.Fields, 0, len(qs))
	for _, q := range qs {
		questions = append(questions, core.Fields{
			"name":   dnsName(q.Name),
			"qtype":  uint16(q.Type),
			"qclass": uint16(q.Class),
		})
	}
	fields["questions"] = questions

	rrs, err := p.AllAnswers()
	if err != nil {
		return plugin.Result{}, dnsError("answer", err)
	}
	if len(rrs) > 0 {
		answers := make([]core.Fields, 0, len(rrs))
		for _, rr := range rrs {
			answers = append(answers, dnsAnswer(rr))
		}
		fields["answers"] = answers
	}

	return plugin.Result{Length: prefix + len(msg), Fields: fields}, nil
}

func dnsAnswer(rr dnsmessage.Resource) core.Fields {
	answer := core.Fields{
		"name":  dnsName(rr.Header.Name),
		"type":  uint16(rr.Header.Type),
		"class": uint16(rr.Header.Class),
		"ttl":   rr.Header.TTL,
	}
	switch body := rr.Body.(type) {
	case *dnsmessage.AResource:
		answer["data"] = netip.AddrFrom4(body.A)
	case *dnsmessage.AAAAResource:
		answer["data"] = netip.AddrFrom16(body.AAAA)
	case *dnsmessage.CNAMEResource:
		answer["data"] = dnsName(body.CNAME)
	case *dnsmessage.NSResource:
		answer["data"] = dnsName(body.NS)
	case *dnsmessage.PTRResource:
		answer["data"] = dnsName(body.PTR)
	case *dnsmessage.MXResource:
		answer["data"] = dnsName(body.MX)
		answer["preference"] = body.Pref
	case *dnsmessage.TXTResource:
		answer["data"] = strings.Join(body.TXT, "")
	}
	return answer
}

func dnsName(n dnsmessage.Name) string {
	return strings.TrimSuffix(n.String(), ".")
}

// dnsError maps a dnsmessage failure onto the error kinds. The package
// exports no sentinels for short reads, only their message text.
func dnsError(section string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "insufficient data") || strings.Contains(msg, "invalid pointer") {
		return core.Truncatedf("DNS %s section: %v", section, err)
	}
	return core.Structuralf("DNS %s section: %v", section, err)
}
