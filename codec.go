// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"
)

// Codec encodes/decodes envelopes
type Codec interface {
	Encode(env *Envelope) ([]byte, error)
	Decode(data []byte) (*Envelope, error)
}

// JSONCodec is the JSON envelope codec used on every wire
type JSONCodec struct{}

func (JSONCodec) Encode(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New("nil envelope")
	}
	return json.Marshal(env)
}

// Decode restores an act's empty argument map, which Encode omits.
func (JSONCodec) Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Kind == KindAct && env.Act == nil {
		env.Act = make(map[string]any)
	}
	return &env, nil
}

// defaultCodec is used when no codec is specified
var defaultCodec Codec = JSONCodec{}

// encodeEnvelope never fails the pipeline: encoding errors are logged and
// reported as "no message".
func encodeEnvelope(c Codec, log *zap.Logger, note string, env *Envelope) []byte {
	if env == nil {
		return nil
	}
	data, err := c.Encode(env)
	if err != nil {
		log.Error("json-stringify", zap.String("note", note), zap.String("id", env.ID), zap.Error(err))
		return nil
	}
	return data
}

// decodeEnvelope is the decoding twin of encodeEnvelope. Empty input yields
// nil without logging.
func decodeEnvelope(c Codec, log *zap.Logger, note string, data []byte) *Envelope {
	if len(data) == 0 {
		return nil
	}
	env, err := c.Decode(data)
	if err != nil {
		log.Error("json-parse", zap.String("note", note), zap.ByteString("data", data), zap.Error(err))
		return nil
	}
	return env
}
