// Package rpchost implements the external host collaborator (spec §6) as a
// JSON-RPC client over the same line-delimited TCP transport sideload's
// modules use, rather than a fresh protocol: the host — an IDA/Ghidra/lldb
// style disassembler process — sits outside this program exactly the way a
// sideload module does, so it gets the same transport.
package rpchost

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/shells-above/swarmre/internal/domain/patch"
	"github.com/shells-above/swarmre/internal/domain/rehost"
	"github.com/shells-above/swarmre/internal/infrastructure/sideload"
)

// RPC method names the host process is expected to implement.
const (
	methodArchitecture    = "host/architecture"
	methodBinaryID        = "host/binary_id"
	methodBinaryPath      = "host/binary_path"
	methodReadBytes       = "host/read_bytes"
	methodWriteBytes      = "host/write_bytes"
	methodDisassemble     = "host/disassemble"
	methodInstrBoundary   = "host/is_instruction_boundary"
	methodInstrLength     = "host/instruction_length"
	methodCreateSegment   = "host/create_segment"
	methodRemoveSegment   = "host/remove_segment"
	methodAddSegmentToFile = "host/add_segment_to_file"
	methodListFunctions   = "host/list_functions"
	methodSearchFunctions = "host/search_functions"
	methodGetXRefs        = "host/get_xrefs"
	methodDecompile       = "host/decompile"
	methodRenameFunction  = "host/rename_function"
	methodSetComment      = "host/set_comment"
	methodSetSignature    = "host/set_function_signature"
	methodRenameVariable  = "host/rename_variable"
	methodSetVariableType = "host/set_variable_type"
	methodAssemble        = "host/assemble"
	methodNOP             = "host/nop"
)

// Client is a connection to one external host process. It implements both
// patch.Host (the Patch Manager's narrow mutation/verification seam) and
// rehost.Host (the Tool Registry's broader query/mutation surface), so a
// single dial serves both.
type Client struct {
	transport *sideload.TCPTransport
	nextID    int64
	binaryID  string
	arch      string
}

var _ patch.Host = (*Client)(nil)
var _ patch.Assembler = (*Client)(nil)
var _ rehost.Host = (*Client)(nil)

// Dial connects to the host process at address and caches its architecture
// and binary id, both of which are fixed for the lifetime of a session.
func Dial(ctx context.Context, address string) (*Client, error) {
	transport, err := sideload.DialTCP(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("dial host %s: %w", address, err)
	}
	c := &Client{transport: transport}

	arch, err := c.call(ctx, methodArchitecture, nil, new(string))
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("query host architecture: %w", err)
	}
	c.arch = *(arch.(*string))

	binID, err := c.call(ctx, methodBinaryID, nil, new(string))
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("query host binary id: %w", err)
	}
	c.binaryID = *(binID.(*string))

	return c, nil
}

func (c *Client) Close() error { return c.transport.Close() }

func (c *Client) Architecture() string { return c.arch }
func (c *Client) BinaryID() string     { return c.binaryID }

func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) (interface{}, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	req, err := sideload.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	if result == nil {
		return nil, nil
	}
	if err := resp.ParseResult(result); err != nil {
		return nil, fmt.Errorf("parse host response for %s: %w", method, err)
	}
	return result, nil
}

// --- patch.Host ---

type readBytesParams struct {
	Address uint64 `json:"address"`
	Length  int    `json:"length"`
}

func (c *Client) ReadBytes(address uint64, n int) ([]byte, error) {
	var out []byte
	_, err := c.call(context.Background(), methodReadBytes, readBytesParams{address, n}, &out)
	return out, err
}

type writeBytesParams struct {
	Address uint64 `json:"address"`
	Data    []byte `json:"data"`
}

func (c *Client) WriteBytes(address uint64, data []byte) error {
	_, err := c.call(context.Background(), methodWriteBytes, writeBytesParams{address, data}, nil)
	return err
}

type disassembleParams struct {
	Address uint64 `json:"address"`
	Length  int    `json:"length"`
}

func (c *Client) Disassemble(address uint64, byteLen int) (string, error) {
	var out string
	_, err := c.call(context.Background(), methodDisassemble, disassembleParams{address, byteLen}, &out)
	return out, err
}

func (c *Client) IsInstructionBoundary(address uint64) bool {
	var out bool
	_, err := c.call(context.Background(), methodInstrBoundary, map[string]uint64{"address": address}, &out)
	return err == nil && out
}

type instrLengthParams struct {
	Address  uint64 `json:"address"`
	MinBytes int    `json:"min_bytes"`
}

func (c *Client) InstructionLength(address uint64, minBytes int) (int, error) {
	var out int
	_, err := c.call(context.Background(), methodInstrLength, instrLengthParams{address, minBytes}, &out)
	return out, err
}

type createSegmentParams struct {
	Name string `json:"name"`
	Size uint64 `json:"size"`
	Code []byte `json:"code"`
}

func (c *Client) CreateSegment(name string, size uint64, code []byte) (uint64, error) {
	var out uint64
	_, err := c.call(context.Background(), methodCreateSegment, createSegmentParams{name, size, code}, &out)
	return out, err
}

func (c *Client) RemoveSegment(name string) error {
	_, err := c.call(context.Background(), methodRemoveSegment, map[string]string{"name": name}, nil)
	return err
}

func (c *Client) BinaryPath() string {
	var out string
	c.call(context.Background(), methodBinaryPath, nil, &out)
	return out
}

type addSegmentToFileParams struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size uint64 `json:"size"`
	Code []byte `json:"code"`
}

func (c *Client) AddSegmentToFile(path, name string, size uint64, code []byte) error {
	_, err := c.call(context.Background(), methodAddSegmentToFile, addSegmentToFileParams{path, name, size, code}, nil)
	return err
}

// --- patch.Assembler ---
//
// The host process doubles as the assembler collaborator: any disassembler
// capable enough to verify instruction boundaries can also assemble, so
// there is no separate architecture-specific assembler library here.

type assembleParams struct {
	Arch    string `json:"arch"`
	Address uint64 `json:"address"`
	Asm     string `json:"asm"`
}

func (c *Client) Assemble(arch string, address uint64, asm string) ([]byte, error) {
	var out []byte
	_, err := c.call(context.Background(), methodAssemble, assembleParams{arch, address, asm}, &out)
	return out, err
}

func (c *Client) NOP(arch string) []byte {
	var out []byte
	c.call(context.Background(), methodNOP, map[string]string{"arch": arch}, &out)
	return out
}

// --- rehost.Host ---

func (c *Client) ListFunctions() ([]rehost.FunctionInfo, error) {
	var out []rehost.FunctionInfo
	_, err := c.call(context.Background(), methodListFunctions, nil, &out)
	return out, err
}

func (c *Client) SearchFunctions(pattern string) ([]rehost.FunctionInfo, error) {
	var out []rehost.FunctionInfo
	_, err := c.call(context.Background(), methodSearchFunctions, map[string]string{"pattern": pattern}, &out)
	return out, err
}

func (c *Client) GetXRefs(address uint64) ([]rehost.XRef, error) {
	var out []rehost.XRef
	_, err := c.call(context.Background(), methodGetXRefs, map[string]uint64{"address": address}, &out)
	return out, err
}

func (c *Client) Decompile(address uint64) (string, error) {
	var out string
	_, err := c.call(context.Background(), methodDecompile, map[string]uint64{"address": address}, &out)
	return out, err
}

func (c *Client) RenameFunction(address uint64, newName string) error {
	_, err := c.call(context.Background(), methodRenameFunction, map[string]interface{}{"address": address, "name": newName}, nil)
	return err
}

func (c *Client) SetComment(address uint64, text string) error {
	_, err := c.call(context.Background(), methodSetComment, map[string]interface{}{"address": address, "text": text}, nil)
	return err
}

func (c *Client) SetFunctionSignature(address uint64, signature string) error {
	_, err := c.call(context.Background(), methodSetSignature, map[string]interface{}{"address": address, "signature": signature}, nil)
	return err
}

func (c *Client) RenameVariable(funcAddress uint64, variable, newName string) error {
	_, err := c.call(context.Background(), methodRenameVariable, map[string]interface{}{"address": funcAddress, "variable": variable, "name": newName}, nil)
	return err
}

func (c *Client) SetVariableType(funcAddress uint64, variable, newType string) error {
	_, err := c.call(context.Background(), methodSetVariableType, map[string]interface{}{"address": funcAddress, "variable": variable, "type": newType}, nil)
	return err
}
