// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Correlation headers carried by the web transport
const (
	HeaderID         = "x-id"
	HeaderKind       = "x-kind"
	HeaderOrigin     = "x-origin"
	HeaderAccept     = "x-accept"
	HeaderClientSent = "x-time-client-sent"
	HeaderListenRecv = "x-time-listen-recv"
	HeaderListenSent = "x-time-listen-sent"
)

const timeoutBody = `{"message":"timeout"}`

// newHTTPClient creates the HTTP client shared by every call of one sender.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
	}
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
// See: https://github.com/golang/go/issues/46071
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	// Drain any remaining data to allow connection reuse
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// webListener answers one act per HTTP request.
type webListener struct {
	core     *listenCore
	listener net.Listener
	srv      *http.Server
	closed   atomic.Bool
}

func listenWeb(ep Endpoint, core *listenCore) (Listener, error) {
	l := &webListener{core: core}

	router := httprouter.New()
	switch ep.Codec {
	case CodecJSONRPC:
		h, err := newJSONRPCHandler(core)
		if err != nil {
			return nil, err
		}
		router.Handler(http.MethodPost, ep.Path, h)
	case CodecHeaders, "":
		router.POST(ep.Path, l.handleAct)
		// GET lets query parameters stand in for the body when debugging
		router.GET(ep.Path, l.handleAct)
	default:
		return nil, fmt.Errorf("unknown web codec: %s", ep.Codec)
	}

	ln, err := net.Listen("tcp", ep.addr())
	if err != nil {
		return nil, err
	}
	l.listener = ln
	l.srv = &http.Server{
		Handler:           http.TimeoutHandler(router, ep.Timeout, timeoutBody),
		ReadHeaderTimeout: ep.Timeout,
	}
	return l, nil
}

// Serve starts serving requests
func (l *webListener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	l.core.log.Info("open", zap.Stringer("addr", l.Addr()), zap.String("path", l.core.ep.Path))
	l.core.emitEvent(EventListening, l.Addr(), nil)

	err := l.srv.Serve(l.listener)
	if errors.Is(err, http.ErrServerClosed) || l.closed.Load() {
		l.core.log.Info("close", zap.Stringer("addr", l.Addr()))
		l.core.emitEvent(EventClose, l.Addr(), nil)
		return nil
	}
	l.core.log.Error("net-error", zap.Error(err))
	l.core.emitEvent(EventError, l.Addr(), err)
	return err
}

// Close stops the HTTP server
func (l *webListener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	err := l.srv.Close()
	_ = l.listener.Close()
	return err
}

// Addr returns the listener address
func (l *webListener) Addr() net.Addr {
	return l.listener.Addr()
}

func (l *webListener) handleAct(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	act := make(map[string]any)
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &act); err != nil {
			l.core.log.Error("json-parse", zap.String("note", "req-body"), zap.ByteString("data", body), zap.Error(err))
			http.Error(w, err.Error()+": "+string(body), http.StatusBadRequest)
			return
		}
	}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			act[k] = vs[0]
		}
	}

	in := &Envelope{
		ID:     r.Header.Get(HeaderID),
		Kind:   KindAct,
		Origin: r.Header.Get(HeaderOrigin),
		Time:   Timing{ClientSent: headerMillis(r.Header, HeaderClientSent)},
		Act:    act,
	}
	out := l.core.handleRequest(r.Context(), in)
	if out == nil {
		http.Error(w, "invalid-envelope", http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	var payload any = out.Res
	if out.Error != nil {
		status = http.StatusInternalServerError
		payload = out.Error
	}
	data := []byte("{}")
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			l.core.log.Error("json-stringify", zap.String("note", "listen-web"), zap.String("id", out.ID), zap.Error(err))
			status = http.StatusInternalServerError
			b, _ = json.Marshal(errorDetail(err))
		}
		data = b
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "private, max-age=0, no-cache, no-store")
	h.Set("Content-Length", strconv.Itoa(len(data)))
	writeEnvelopeHeaders(h, out)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeEnvelopeHeaders(h http.Header, env *Envelope) {
	h.Set(HeaderID, env.ID)
	h.Set(HeaderKind, string(env.Kind))
	if env.Origin != "" {
		h.Set(HeaderOrigin, env.Origin)
	}
	if env.Accept != "" {
		h.Set(HeaderAccept, env.Accept)
	}
	setMillis := func(key string, v int64) {
		if v != 0 {
			h.Set(key, strconv.FormatInt(v, 10))
		}
	}
	setMillis(HeaderClientSent, env.Time.ClientSent)
	setMillis(HeaderListenRecv, env.Time.ListenRecv)
	setMillis(HeaderListenSent, env.Time.ListenSent)
}

func readEnvelopeHeaders(h http.Header) *Envelope {
	return &Envelope{
		ID:     h.Get(HeaderID),
		Kind:   Kind(h.Get(HeaderKind)),
		Origin: h.Get(HeaderOrigin),
		Accept: h.Get(HeaderAccept),
		Time: Timing{
			ClientSent: headerMillis(h, HeaderClientSent),
			ListenRecv: headerMillis(h, HeaderListenRecv),
			ListenSent: headerMillis(h, HeaderListenSent),
		},
	}
}

func headerMillis(h http.Header, key string) int64 {
	v, err := strconv.ParseInt(h.Get(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func clientWeb(ep Endpoint, c *Client) MakeSend {
	return func(_ context.Context, _ Pin, topic string) (Sender, error) {
		if ep.Codec != "" && ep.Codec != CodecHeaders && ep.Codec != CodecJSONRPC {
			return nil, fmt.Errorf("unknown web codec: %s", ep.Codec)
		}
		u := url.URL{Scheme: ep.Protocol, Host: ep.addr(), Path: ep.Path}
		ctx, cancel := context.WithCancel(context.Background())
		s := &webSender{
			url:     u.String(),
			jsonrpc: ep.Codec == CodecJSONRPC,
			client:  newHTTPClient(ep.Timeout),
			deliver: c.handleResponse,
			log:     c.log.With(zap.String("topic", topic)),
			ctx:     ctx,
			cancel:  cancel,
		}
		s.log.Debug("send", zap.String("url", s.url))
		return s, nil
	}
}

// webSender issues one POST per call. Every outcome, including transport
// failures, comes back to the client as a response envelope.
type webSender struct {
	url     string
	jsonrpc bool
	client  *http.Client
	deliver func(*Envelope) bool
	log     *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *webSender) Send(_ context.Context, env *Envelope) error {
	body, err := s.encode(env)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.deliver(s.exchange(body, env))
	}()
	return nil
}

func (s *webSender) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	s.client.CloseIdleConnections()
	return nil
}

func (s *webSender) encode(env *Envelope) ([]byte, error) {
	var (
		body []byte
		err  error
	)
	if s.jsonrpc {
		body, err = encodeJSONRPCRequest(env)
	} else {
		body, err = json.Marshal(env.Act)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode act: %w", err)
	}
	return body, nil
}

func (s *webSender) newRequest(body []byte, env *Envelope) (*http.Request, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !s.jsonrpc {
		req.Header.Set(HeaderID, env.ID)
		req.Header.Set(HeaderKind, string(KindAct))
		req.Header.Set(HeaderOrigin, env.Origin)
		req.Header.Set(HeaderClientSent, strconv.FormatInt(env.Time.ClientSent, 10))
	}
	return req, nil
}

func (s *webSender) exchange(body []byte, env *Envelope) *Envelope {
	req, err := s.newRequest(body, env)
	if err != nil {
		return failedResponse(env, err.Error(), nil)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("request-error", zap.String("id", env.ID), zap.Error(err))
		return failedResponse(env, err.Error(), nil)
	}
	defer CleanlyCloseBody(resp.Body)

	if s.jsonrpc {
		return decodeJSONRPCResponse(resp, env)
	}

	out := readEnvelopeHeaders(resp.Header)
	if out.ID == "" {
		out.ID = env.ID
	}
	if out.Kind == "" {
		out.Kind = KindRes
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return failedResponse(env, err.Error(), nil)
	}

	// Return an error for any non successful status code
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := &ErrorDetail{}
		if json.Unmarshal(data, detail) != nil || detail.Message == "" {
			detail = &ErrorDetail{
				Message: fmt.Sprintf("received status code: %d", resp.StatusCode),
				Details: string(data),
			}
		}
		out.Error = detail
		return out
	}

	if len(bytes.TrimSpace(data)) > 0 {
		var res any
		if err := json.Unmarshal(data, &res); err != nil {
			out.Error = &ErrorDetail{Message: fmt.Sprintf("failed to decode response: %v", err)}
		} else {
			out.Res = res
		}
	}
	return out
}

// failedResponse synthesizes the response to a call that never got one.
func failedResponse(req *Envelope, msg string, details any) *Envelope {
	return &Envelope{
		ID:    req.ID,
		Kind:  KindRes,
		Time:  Timing{ClientSent: req.Time.ClientSent},
		Error: &ErrorDetail{Message: msg, Details: details},
	}
}
