// Package models re-exports core types for external use.
package models

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/pktkit/internal/core"
)

// Re-export the capture and packet model for plugins and embedders
type (
	Capture       = core.Capture
	CaptureHeader = core.CaptureHeader
	Interface     = core.Interface
	Frame         = core.Frame
	Packet        = core.Packet
	Layer         = core.Layer
	Fields        = core.Fields
	Next          = core.Next
	Kind          = core.Kind
	Code          = core.Code
	Stratum       = core.Stratum
	LinkType      = core.LinkType
	Format        = core.Format
	State         = core.State
	Cursor        = core.Cursor
	DissectError  = core.DissectError
)

// Bind decodes a layer's fields into out, a pointer to a struct whose
// fields carry mapstructure tags:
//
//	var udp struct {
//		SrcPort uint16 `mapstructure:"src_port"`
//		DstPort uint16 `mapstructure:"dst_port"`
//	}
//	err := models.Bind(pkt.Layer("udp"), &udp)
//
// Address values bind to netip.Addr fields directly or to string fields
// through their String form. Fields absent from the struct are ignored.
func Bind(layer *Layer, out any) error {
	if layer == nil {
		return fmt.Errorf("bind: nil layer")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: stringerHook,
		Result:     out,
	})
	if err != nil {
		return fmt.Errorf("bind %s: %w", layer.Protocol, err)
	}
	if err := dec.Decode(map[string]any(layer.Fields)); err != nil {
		return fmt.Errorf("bind %s: %w", layer.Protocol, err)
	}
	return nil
}

func stringerHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String || from.Kind() == reflect.String {
		return data, nil
	}
	if s, ok := data.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return data, nil
}
