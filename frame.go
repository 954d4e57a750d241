// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"bytes"

	"go.uber.org/zap"
)

const frameDelim = '\n'

// FrameDecoder reassembles newline-delimited envelopes from a byte stream.
// It keeps any trailing partial line between calls to Write. A decoder
// belongs to exactly one connection and is not safe for concurrent use.
type FrameDecoder struct {
	codec Codec
	log   *zap.Logger
	buf   []byte
}

// NewFrameDecoder returns a decoder using c (JSON when nil).
func NewFrameDecoder(c Codec, log *zap.Logger) *FrameDecoder {
	if c == nil {
		c = defaultCodec
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FrameDecoder{codec: c, log: log}
}

// Write consumes p and returns the envelopes completed by it, in stream order.
// Empty and undecodable lines produce nothing.
func (d *FrameDecoder) Write(p []byte) []*Envelope {
	var out []*Envelope
	d.buf = append(d.buf, p...)
	for {
		i := bytes.IndexByte(d.buf, frameDelim)
		if i < 0 {
			break
		}
		line := bytes.TrimRight(d.buf[:i], "\r")
		if env := decodeEnvelope(d.codec, d.log, "stream", line); env != nil {
			out = append(out, env)
		}
		d.buf = d.buf[i+1:]
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out
}

// Buffered reports the number of bytes held for an incomplete line.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}

// EncodeFrame encodes env and appends the line terminator. It returns nil
// when env cannot be encoded.
func EncodeFrame(c Codec, log *zap.Logger, env *Envelope) []byte {
	if c == nil {
		c = defaultCodec
	}
	if log == nil {
		log = zap.NewNop()
	}
	data := encodeEnvelope(c, log, "stream", env)
	if data == nil {
		return nil
	}
	return append(data, frameDelim)
}
