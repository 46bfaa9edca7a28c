package rpc

import (
	"encoding/binary"
	"fmt"

	"github.com/dreamware/graphps/internal/graph"
)

// Request is one command addressed to a table.
//
// Wire layout, little-endian:
//
//	[hasTable:1][tableID:4][clientID:4][cmd:4][paramCount:4]{[len:4][bytes]}
type Request struct {
	HasTable bool
	TableID  uint32
	ClientID uint32
	Command  Command
	Params   [][]byte
}

// Response carries a status, a small structured payload and a bulk
// attachment.
//
// Wire layout, little-endian:
//
//	[code:4][msgLen:4][msg][dataLen:4][data][attLen:4][attachment]
type Response struct {
	Code       Code
	Message    string
	Data       []byte
	Attachment []byte
}

// NewRequest builds a request for a table command.
func NewRequest(tableID, clientID uint32, cmd Command, params ...[]byte) *Request {
	return &Request{HasTable: true, TableID: tableID, ClientID: clientID, Command: cmd, Params: params}
}

// ErrorResponse builds a failed response from err.
func ErrorResponse(err error) *Response {
	return &Response{Code: CodeOf(err), Message: err.Error()}
}

// Err returns nil for a successful response and a *RemoteError otherwise.
func (r *Response) Err() error {
	if r.Code == CodeOK {
		return nil
	}
	return &RemoteError{Code: r.Code, Message: r.Message}
}

func (r *Request) MarshalBinary() ([]byte, error) {
	size := 1 + 4*4
	for _, p := range r.Params {
		size += 4 + len(p)
	}
	buf := make([]byte, 0, size)
	if r.HasTable {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint32(buf, r.TableID)
	buf = binary.LittleEndian.AppendUint32(buf, r.ClientID)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Command))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Params)))
	for _, p := range r.Params {
		buf = appendBytes(buf, p)
	}
	return buf, nil
}

func (r *Request) UnmarshalBinary(data []byte) error {
	d := decoder{buf: data}
	flag := d.byte()
	r.TableID = d.uint32()
	r.ClientID = d.uint32()
	r.Command = Command(d.uint32())
	count := d.uint32()
	if d.err != nil {
		return d.err
	}
	if flag > 1 {
		return &graph.DecodeError{Offset: 0, Reason: fmt.Sprintf("invalid table flag %d", flag)}
	}
	r.HasTable = flag == 1
	if int64(count)*4 > int64(len(data)-d.off) {
		return &graph.DecodeError{Offset: d.off, Reason: fmt.Sprintf("param count %d exceeds buffer", count)}
	}
	r.Params = make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		r.Params = append(r.Params, d.bytes())
	}
	return d.finish()
}

func (r *Response) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 16+len(r.Message)+len(r.Data)+len(r.Attachment))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Code))
	buf = appendBytes(buf, []byte(r.Message))
	buf = appendBytes(buf, r.Data)
	buf = appendBytes(buf, r.Attachment)
	return buf, nil
}

func (r *Response) UnmarshalBinary(data []byte) error {
	d := decoder{buf: data}
	r.Code = Code(int32(d.uint32()))
	r.Message = string(d.bytes())
	r.Data = d.bytes()
	r.Attachment = d.bytes()
	return d.finish()
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

// decoder reads fields sequentially and keeps the first error.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) need(n int, what string) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = &graph.DecodeError{Offset: d.off, Reason: fmt.Sprintf("short buffer reading %s", what)}
		return false
	}
	return true
}

func (d *decoder) byte() byte {
	if !d.need(1, "flag") {
		return 0
	}
	b := d.buf[d.off]
	d.off++
	return b
}

func (d *decoder) uint32() uint32 {
	if !d.need(4, "uint32") {
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) bytes() []byte {
	n := d.uint32()
	if !d.need(int(n), "length-prefixed field") {
		return nil
	}
	b := make([]byte, n)
	copy(b, d.buf[d.off:])
	d.off += int(n)
	return b
}

func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.buf) {
		return &graph.DecodeError{Offset: d.off, Reason: fmt.Sprintf("%d trailing bytes", len(d.buf)-d.off)}
	}
	return nil
}
