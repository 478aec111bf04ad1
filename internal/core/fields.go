package core

// Fields maps a layer's field names to decoded values: integers, byte
// slices, strings, bools, addresses, or nested Fields / []Fields.
type Fields map[string]any

// Uint returns an unsigned integer field widened to uint64.
func (f Fields) Uint(name string) (uint64, bool) {
	switch v := f[name].(type) {
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}

// String returns a string field.
func (f Fields) String(name string) (string, bool) {
	v, ok := f[name].(string)
	return v, ok
}

// Bool returns a bool field.
func (f Fields) Bool(name string) (bool, bool) {
	v, ok := f[name].(bool)
	return v, ok
}

// Sub returns a nested field set.
func (f Fields) Sub(name string) (Fields, bool) {
	v, ok := f[name].(Fields)
	return v, ok
}

// Field naming convention: lower_snake_case, one name per wire field.
const (
	FieldSrc     = "src"
	FieldDst     = "dst"
	FieldSrcPort = "src_port"
	FieldDstPort = "dst_port"
	FieldType    = "type"
	FieldLength  = "length"
	FieldFlags   = "flags"
	FieldPayload = "payload_len"
)
