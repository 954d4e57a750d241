// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"errors"
	"fmt"
	"net/http"

	rpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

// JSON-RPC 2.0 method serving acts on a web listener with the jsonrpc codec.
// Params and result are whole envelopes.
const (
	jsonrpcService = "Transport"
	jsonrpcMethod  = jsonrpcService + ".Act"
)

var errInvalidEnvelope = errors.New("invalid-envelope")

type actService struct {
	core *listenCore
}

// Act handles one request envelope.
func (s *actService) Act(r *http.Request, args *Envelope, reply *Envelope) error {
	out := s.core.handleRequest(r.Context(), args)
	if out == nil {
		return errInvalidEnvelope
	}
	*reply = *out
	return nil
}

func newJSONRPCHandler(core *listenCore) (http.Handler, error) {
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&actService{core: core}, jsonrpcService); err != nil {
		return nil, fmt.Errorf("register %s: %w", jsonrpcService, err)
	}
	return s, nil
}

func encodeJSONRPCRequest(env *Envelope) ([]byte, error) {
	return json2.EncodeClientRequest(jsonrpcMethod, env)
}

func decodeJSONRPCResponse(resp *http.Response, req *Envelope) *Envelope {
	var out Envelope
	if err := json2.DecodeClientResponse(resp.Body, &out); err != nil {
		var rpcErr *json2.Error
		switch {
		case errors.As(err, &rpcErr):
			return failedResponse(req, rpcErr.Message, rpcErr.Data)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return failedResponse(req, fmt.Sprintf("received status code: %d", resp.StatusCode), nil)
		}
		return failedResponse(req, fmt.Sprintf("failed to decode client response: %v", err), nil)
	}
	if out.ID == "" {
		out.ID = req.ID
	}
	return &out
}
