// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package codec implements the canonical, schema-driven binary
// serializer used for every gossip message: a fixed little-endian
// binary layout, since the wire format here is consumed by the
// topic-routed gossip layer rather than by humans.
//
// Each wire type writes its fields in a fixed order (its "schema")
// through a Writer and reads them back in the same order through a
// Reader; there is no in-payload type tag — the message type is
// determined entirely by the gossip topic string it travels on.
package codec

import (
	"encoding/binary"

	"github.com/luxfi/shardbft/errs"
)

// Version is the current wire schema version.
const Version uint16 = 1

// Writer builds a binary payload field by field.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) PutByte(b byte)     { w.buf = append(w.buf, b) }
func (w *Writer) PutBool(b bool) {
	if b {
		w.PutByte(1)
	} else {
		w.PutByte(0)
	}
}

func (w *Writer) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutFixed appends raw bytes with no length prefix (for fixed-width
// fields like 32-byte hashes).
func (w *Writer) PutFixed(b []byte) { w.buf = append(w.buf, b...) }

// PutBytes appends a length-prefixed variable-length field.
func (w *Writer) PutBytes(b []byte) {
	w.PutUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) Bytes() []byte { return w.buf }

// Reader consumes a binary payload field by field in the same order
// it was written.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) remaining() int { return len(r.buf) - r.pos }

func (r *Reader) Byte() (byte, error) {
	if r.remaining() < 1 {
		return 0, errs.New(errs.MessageTooShort, "byte")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.Byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *Reader) Uint64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, errs.New(errs.MessageTooShort, "uint64")
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *Reader) Uint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, errs.New(errs.MessageTooShort, "uint32")
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *Reader) Fixed(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, errs.New(errs.MessageTooShort, "fixed")
	}
	out := append([]byte(nil), r.buf[r.pos:r.pos+n]...)
	r.pos += n
	return out, nil
}

func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	return r.Fixed(int(n))
}

// Done reports whether every byte has been consumed.
func (r *Reader) Done() bool { return r.remaining() == 0 }
