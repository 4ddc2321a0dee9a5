// Copyright 2026 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/maruel/go-vd6g/cmd/internal/sensorcfg"
	"github.com/maruel/go-vd6g/vd6g"
	"github.com/maruel/interrupt"
	"golang.org/x/net/websocket"
)

// Snapshot is the sensor status as sent to clients.
type Snapshot struct {
	Time        time.Time
	State       string
	FSM         string
	SystemError uint16
	PLLHz       uint32
	LineLength  uint16
	FrameLength uint16
	Bayer       string
	Capability  string
	AnalogGain  uint8
	DigitalGain uint16
	Exposure    time.Duration
}

// controller serializes the accesses to the sensor.
type controller struct {
	mu  sync.Mutex
	dev *vd6g.Dev
}

func (c *controller) snapshot() (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &Snapshot{
		Time:        time.Now().UTC(),
		State:       c.dev.GetState().String(),
		Bayer:       c.dev.GetBayer().String(),
		Capability:  c.dev.GetCapability().String(),
		DigitalGain: c.dev.GetDigitalGain(),
	}
	s.PLLHz, s.LineLength, s.FrameLength = c.dev.GetTiming()
	st, err := c.dev.ReadStatus()
	if err != nil {
		return nil, err
	}
	s.FSM = st.FSM.String()
	s.SystemError = st.SystemError
	if s.AnalogGain, err = c.dev.GetAnalogGain(); err != nil {
		return nil, err
	}
	if s.Exposure, err = c.dev.GetExposure(); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *controller) apply(t *sensorcfg.Tuning) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.Apply(c.dev)
}

// release stops streaming and shuts the sensor down. The HTTP handlers and the
// tuning watcher may still be running; they get vd6g.ErrState afterward.
func (c *controller) release() error {
	return c.direct(func(d *vd6g.Dev) error { return d.DeInit() })
}

// WebServer exposes the controller over HTTP.
type WebServer struct {
	c *controller

	cond      *sync.Cond
	last      *Snapshot
	lastIndex int // Incremented on each new snapshot.
}

func newWebServer(c *controller) *WebServer {
	return &WebServer{c: c, cond: sync.NewCond(&sync.Mutex{})}
}

func (s *WebServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.status)
	mux.HandleFunc("/gain", s.gain)
	mux.HandleFunc("/exposure", s.exposure)
	mux.Handle("/stream", websocket.Handler(s.stream))
	return loggingHandler{mux}
}

// Start listens on port until the process is interrupted.
func (s *WebServer) Start(port int) {
	fmt.Printf("Listening on %d\n", port)
	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), s.handler()); err != nil {
			glog.Errorf("http: %v", err)
		}
	}()
	go func() {
		<-interrupt.Channel
		s.cond.Broadcast()
	}()
}

// Update publishes a new snapshot to the websocket clients.
func (s *WebServer) Update(snap *Snapshot) {
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	s.last = snap
	s.lastIndex++
	s.cond.Broadcast()
}

func (s *WebServer) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.c.snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		glog.Warningf("status: %v", err)
	}
}

type gainRequest struct {
	Analog  *uint8
	Digital *uint16
}

func (s *WebServer) gain(w http.ResponseWriter, r *http.Request) {
	req := gainRequest{}
	if !decodePost(w, r, &req) {
		return
	}
	s.reply(w, s.c.direct(func(d *vd6g.Dev) error {
		if req.Analog != nil {
			if err := d.SetAnalogGain(*req.Analog); err != nil {
				return err
			}
		}
		if req.Digital != nil {
			return d.SetDigitalGain(*req.Digital)
		}
		return nil
	}))
}

type exposureRequest struct {
	Exposure string // time.Duration format, e.g. "10ms".
}

func (s *WebServer) exposure(w http.ResponseWriter, r *http.Request) {
	req := exposureRequest{}
	if !decodePost(w, r, &req) {
		return
	}
	e, err := time.ParseDuration(req.Exposure)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.reply(w, s.c.direct(func(d *vd6g.Dev) error { return d.SetExposure(e) }))
}

// reply maps the driver errors to HTTP status codes.
func (s *WebServer) reply(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, vd6g.ErrOutOfRange):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, vd6g.ErrState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// stream sends each snapshot as a websocket frame.
func (s *WebServer) stream(w *websocket.Conn) {
	glog.Infof("websocket from %s", w.Request().RemoteAddr)
	defer w.Close()
	buf := &bytes.Buffer{}
	s.cond.L.Lock()
	defer s.cond.L.Unlock()
	lastIndex := s.lastIndex
	for !interrupt.IsSet() {
		for !interrupt.IsSet() && lastIndex == s.lastIndex {
			s.cond.Wait()
		}
		if interrupt.IsSet() {
			break
		}
		lastIndex = s.lastIndex
		snap := s.last
		s.cond.L.Unlock()
		// Do the actual I/O without the lock.
		// Frame S is for Status.
		buf.WriteByte('S')
		err := json.NewEncoder(buf).Encode(snap)
		if err == nil {
			_, err = w.Write(buf.Bytes())
		}
		buf.Reset()
		s.cond.L.Lock()
		// To break out of the loop, the lock must be held.
		if err != nil {
			glog.Warningf("websocket err: %s", err)
			break
		}
	}
}

// Private details.

func (c *controller) direct(f func(d *vd6g.Dev) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return f(c.dev)
}

func decodePost(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return false
	}
	d := json.NewDecoder(r.Body)
	d.DisallowUnknownFields()
	if err := d.Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// loggingHandler wraps the mux to log one line per request: client, status,
// response size and URI.
type loggingHandler struct {
	handler http.Handler
}

// loggingResponseWriter records what the handler sent back.
type loggingResponseWriter struct {
	http.ResponseWriter
	length int
	status int
}

func (l *loggingResponseWriter) Write(data []byte) (size int, err error) {
	size, err = l.ResponseWriter.Write(data)
	l.length += size
	return
}

func (l *loggingResponseWriter) WriteHeader(status int) {
	l.ResponseWriter.WriteHeader(status)
	l.status = status
}

// Hijack lets /stream take over the connection for the websocket.
func (l *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := l.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("connection can't be hijacked")
	}
	return h.Hijack()
}

// ServeHTTP logs at verbosity 1 once the request is served. A websocket is
// logged when it closes.
func (l loggingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	l.handler.ServeHTTP(lrw, r)
	glog.V(1).Infof("%s %3d %6db %4s %s %s", r.RemoteAddr, lrw.status, lrw.length, r.Method, r.RequestURI, time.Since(start).Round(time.Millisecond))
}
