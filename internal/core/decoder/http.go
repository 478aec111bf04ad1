package decoder

import (
	"bufio"
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/pkg/plugin"
)

var (
	httpDissector = plugin.NewDissector("http", core.StratumApplication, dissectHTTP)

	httpMethods = []string{
		http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete,
		http.MethodConnect, http.MethodOptions, http.MethodTrace, http.MethodPatch,
	}
	httpProto = []byte("HTTP/")

	crlf       = []byte("\r\n")
	headerTerm = []byte("\r\n\r\n")
)

// dissectHTTP decodes an HTTP/1.x start line and header block with
// net/http. The body is left in the layer bytes; the whole segment is one
// layer. Segments that do not open a message (continuations) are rejected
// as structural before the header terminator is looked for.
func dissectHTTP(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
	data := cur.Rest()
	line, _, hasLine := bytes.Cut(data, crlf)
	if !hasLine {
		if httpStartPrefix(data) {
			return plugin.Result{}, core.Truncatedf("HTTP start line cut at %d bytes", len(data))
		}
		return plugin.Result{}, core.Structuralf("HTTP start line %q", data)
	}
	if !httpStart(line) {
		return plugin.Result{}, core.Structuralf("HTTP start line %q", line)
	}

	end := bytes.Index(data, headerTerm)
	if end < 0 {
		return plugin.Result{}, core.Truncatedf("HTTP header block without terminator in %d bytes", len(data))
	}
	head := bufio.NewReader(bytes.NewReader(data[:end+len(headerTerm)]))

	var fields core.Fields
	if bytes.HasPrefix(line, httpProto) {
		resp, err := http.ReadResponse(head, nil)
		if err != nil {
			return plugin.Result{}, core.Structuralf("HTTP response: %v", err)
		}
		fields = core.Fields{
			core.FieldType: "response",
			"version":      resp.Proto,
			"status":       resp.StatusCode,
			"reason":       strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))),
			"headers":      httpHeaders(resp.Header, ""),
		}
	} else {
		req, err := http.ReadRequest(head)
		if err != nil {
			return plugin.Result{}, core.Structuralf("HTTP request: %v", err)
		}
		fields = core.Fields{
			core.FieldType: "request",
			"method":       req.Method,
			"uri":          req.RequestURI,
			"version":      req.Proto,
			// ReadRequest moves Host out of the header map.
			"headers": httpHeaders(req.Header, req.Host),
		}
	}
	fields["body_len"] = len(data) - end - len(headerTerm)

	return plugin.Result{Length: len(data), Fields: fields}, nil
}

func httpHeaders(h http.Header, host string) core.Fields {
	headers := make(core.Fields, len(h)+1)
	for name, values := range h {
		headers[name] = strings.Join(values, ", ")
	}
	if host != "" {
		headers["Host"] = host
	}
	return headers
}

// httpStart reports whether line opens an HTTP/1.x request or response.
func httpStart(line []byte) bool {
	if bytes.HasPrefix(line, httpProto) {
		return true
	}
	method, _, ok := bytes.Cut(line, []byte(" "))
	if !ok {
		return false
	}
	for _, m := range httpMethods {
		if string(method) == m {
			return true
		}
	}
	return false
}

// httpStartPrefix reports whether data could be the first bytes of a start
// line that was cut short.
func httpStartPrefix(data []byte) bool {
	if httpStart(data) || bytes.HasPrefix(httpProto, data) {
		return true
	}
	for _, m := range httpMethods {
		if strings.HasPrefix(m+" ", string(data)) {
			return true
		}
	}
	return false
}
