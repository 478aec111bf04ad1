package decoder

import (
	"bytes"
	"regexp"

	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/sip/parser"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/pkg/plugin"
)

const sipPort = 5060

var (
	sipRequestLine  = regexp.MustCompile(`^[A-Z]+ \S+ SIP/2\.0$`)
	sipResponseLine = regexp.MustCompile(`^SIP/2\.0 \d{3}( .*)?$`)
)

// sipDissector parses SIP messages with gosip. PacketParser keeps no state
// between messages, so one instance serves every worker.
type sipDissector struct {
	parser *parser.PacketParser
}

func newSipDissector() *sipDissector {
	return &sipDissector{
		parser: parser.NewPacketParser(newSipLogger(nil).WithFields(map[string]interface{}{"dissector": "sip"})),
	}
}

func (d *sipDissector) Name() string          { return "sip" }
func (d *sipDissector) Stratum() core.Stratum { return core.StratumApplication }

func (d *sipDissector) Dissect(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
	data := cur.Rest()
	startLine, _, hasLine := bytes.Cut(data, crlf)
	if hasLine && !sipRequestLine.Match(startLine) && !sipResponseLine.Match(startLine) {
		return plugin.Result{}, core.Structuralf("SIP start line %q", startLine)
	}
	if !bytes.Contains(data, headerTerm) {
		return plugin.Result{}, core.Truncatedf("SIP header block without terminator in %d bytes", len(data))
	}

	msg, err := d.parser.ParseMessage(data)
	if err != nil {
		return plugin.Result{}, core.Structuralf("SIP: %v", err)
	}
	return plugin.Result{Length: len(data), Fields: sipFields(msg)}, nil
}

func sipFields(msg sip.Message) core.Fields {
	fields := core.Fields{}
	switch m := msg.(type) {
	case sip.Request:
		fields[core.FieldType] = "request"
		fields["method"] = string(m.Method())
		fields["uri"] = m.Recipient().String()
	case sip.Response:
		fields[core.FieldType] = "response"
		fields["status"] = int(m.StatusCode())
		fields["reason"] = m.Reason()
	}

	if id, ok := msg.CallID(); ok {
		fields["call_id"] = id.Value()
	}
	if cseq, ok := msg.CSeq(); ok {
		fields["cseq"] = cseq.Value()
	}
	if from, ok := msg.From(); ok {
		fields["from"] = from.Value()
	}
	if to, ok := msg.To(); ok {
		fields["to"] = to.Value()
	}

	headers := core.Fields{}
	for _, h := range msg.Headers() {
		if prev, ok := headers.String(h.Name()); ok {
			headers[h.Name()] = prev + ", " + h.Value()
			continue
		}
		headers[h.Name()] = h.Value()
	}
	fields["headers"] = headers
	fields["body_len"] = len(msg.Body())
	return fields
}
