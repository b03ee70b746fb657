// Package toolsurface implements the Agent Tool Surface (spec §4.3/§6): a
// typed RPC interface exposed to the Agent Runner over a bidirectional
// stdio channel. One newline-delimited JSON object per line, request
// shape {id, method, params}, response shape {id, result | error}.
//
// The frame shape is hand-written rather than built on
// modelcontextprotocol/go-sdk: that SDK speaks MCP's own JSON-RPC 2.0
// envelope plus a handshake/capability-negotiation phase this surface
// never performs. The framing here is grounded on the way tarsy's own MCP
// client (pkg/mcp/client.go, pkg/mcp/transport.go) expects a tool call to
// look from the caller's side, not on the SDK's wire types.
package toolsurface

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/innerline/yokeflow2-sub000/pkg/apperrors"
)

// Request is one inbound call from the Agent Runner.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorFrame is the wire shape of a failed call (spec §6).
type ErrorFrame struct {
	Kind    apperrors.Kind `json:"kind"`
	Message string         `json:"message"`
	Details string         `json:"details,omitempty"`
}

// Response is a terminal reply to a Request.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorFrame     `json:"error,omitempty"`
}

// PartialPayload carries one chunk of streamed stdout/stderr from `bash`.
type PartialPayload struct {
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// PartialFrame is a non-terminal frame preceding the eventual Response for
// a streaming call (only `bash` streams today).
type PartialFrame struct {
	ID      string         `json:"id"`
	Partial PartialPayload `json:"partial"`
}

// Codec reads Requests and writes Response/PartialFrame frames over a
// newline-delimited JSON stream. Writes are serialized: the Agent Runner
// may have several calls in flight (queries alongside a streaming bash
// call), and their frames must not interleave mid-line.
type Codec struct {
	scanner *bufio.Scanner

	writeMu sync.Mutex
	w       io.Writer
}

// NewCodec wraps r/w as the framed stdio channel for one session.
func NewCodec(r io.Reader, w io.Writer) *Codec {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Codec{scanner: scanner, w: w}
}

// ReadRequest blocks for the next line and decodes it as a Request. Returns
// io.EOF when the underlying reader is exhausted (the Agent Runner exited).
func (c *Codec) ReadRequest() (*Request, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("read request frame: %w", err)
		}
		return nil, io.EOF
	}
	line := c.scanner.Bytes()
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("decode request frame: %w", err)
	}
	return &req, nil
}

func (c *Codec) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteResult writes a successful terminal response.
func (c *Codec) WriteResult(id string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return c.writeLine(Response{ID: id, Result: data})
}

// WriteError writes an error terminal response, translating err's
// apperrors.Kind into the wire `kind` field (spec §6).
func (c *Codec) WriteError(id string, err error) error {
	return c.writeLine(Response{ID: id, Error: &ErrorFrame{
		Kind:    apperrors.KindOf(err),
		Message: err.Error(),
	}})
}

// WritePartial streams one stdout/stderr chunk of a `bash` call in flight.
func (c *Codec) WritePartial(id string, chunk PartialPayload) error {
	return c.writeLine(PartialFrame{ID: id, Partial: chunk})
}
