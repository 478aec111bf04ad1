// Package record exports dissection results as length-delimited protobuf
// messages, one google.protobuf.Struct per frame.
package record

import (
	"encoding/hex"
	"fmt"
	"io"
	"reflect"
	"time"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"firestige.xyz/pktkit/internal/core"
)

const Name = "record"

// Sink writes one record per dissected frame, each a varint length prefix
// followed by the binary message. Frames that were not dissected are not
// supported.
type Sink struct {
	w       io.Writer
	written int
}

func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

func (s *Sink) Support(f *core.Frame) bool {
	return f.Packet != nil
}

func (s *Sink) HandleFrame(f *core.Frame) error {
	if _, err := protodelim.MarshalTo(s.w, Encode(f)); err != nil {
		return fmt.Errorf("write record for frame %d: %w", f.Number, err)
	}
	s.written++
	return nil
}

// Written returns the number of records written.
func (s *Sink) Written() int { return s.written }

// Encode converts a dissected frame into a Struct:
//
//	{number, timestamp, caplen, origlen, link_type, chain, state, error?,
//	 layers: [{protocol, stratum, offset, length, tag?, fields}], remainder_len}
func Encode(f *core.Frame) *structpb.Struct {
	rec := &structpb.Struct{Fields: map[string]*structpb.Value{
		"number":    structpb.NewNumberValue(float64(f.Number)),
		"timestamp": structpb.NewStringValue(f.Timestamp.UTC().Format(time.RFC3339Nano)),
		"caplen":    structpb.NewNumberValue(float64(f.CaptureLen)),
		"origlen":   structpb.NewNumberValue(float64(f.OrigLen)),
		"link_type": structpb.NewNumberValue(float64(f.LinkType)),
	}}
	pkt := f.Packet
	if pkt == nil {
		return rec
	}

	rec.Fields["chain"] = structpb.NewStringValue(pkt.Chain())
	rec.Fields["state"] = structpb.NewStringValue(pkt.State.String())
	if pkt.Err != nil {
		rec.Fields["error"] = structpb.NewStringValue(pkt.Err.Error())
	}
	layers := make([]*structpb.Value, 0, len(pkt.Layers))
	for i := range pkt.Layers {
		layers = append(layers, structpb.NewStructValue(encodeLayer(&pkt.Layers[i])))
	}
	rec.Fields["layers"] = structpb.NewListValue(&structpb.ListValue{Values: layers})
	rec.Fields["remainder_len"] = structpb.NewNumberValue(float64(len(pkt.Remainder)))
	return rec
}

func encodeLayer(l *core.Layer) *structpb.Struct {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"protocol": structpb.NewStringValue(l.Protocol),
		"stratum":  structpb.NewStringValue(string(l.Stratum)),
		"offset":   structpb.NewNumberValue(float64(l.Offset)),
		"length":   structpb.NewNumberValue(float64(l.Len())),
		"fields":   structpb.NewStructValue(encodeFields(l.Fields)),
	}}
	if l.IsRaw() {
		s.Fields["tag"] = structpb.NewStringValue(l.Tag())
	}
	return s
}

func encodeFields(fields core.Fields) *structpb.Struct {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(fields))}
	for name, v := range fields {
		s.Fields[name] = encodeValue(v)
	}
	return s
}

// encodeValue maps field values onto Struct values. Addresses and other
// Stringers become strings; byte slices become hex.
func encodeValue(v any) *structpb.Value {
	switch x := v.(type) {
	case nil:
		return structpb.NewNullValue()
	case core.Fields:
		return structpb.NewStructValue(encodeFields(x))
	case map[string]any:
		return structpb.NewStructValue(encodeFields(x))
	case fmt.Stringer:
		return structpb.NewStringValue(x.String())
	case []byte:
		return structpb.NewStringValue(hex.EncodeToString(x))
	}

	if val, err := structpb.NewValue(v); err == nil {
		return val
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		list := make([]*structpb.Value, rv.Len())
		for i := range list {
			list[i] = encodeValue(rv.Index(i).Interface())
		}
		return structpb.NewListValue(&structpb.ListValue{Values: list})
	}
	return structpb.NewStringValue(fmt.Sprint(v))
}
