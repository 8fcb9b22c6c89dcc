// Package serve runs the scanning service as a long-lived NDJSON streaming
// server: requests on stdin, responses on stdout, one JSON object per line.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"

	"github.com/scanforge/sigscan/pkg/logging"
	"github.com/scanforge/sigscan/pkg/ruleset"
	"github.com/scanforge/sigscan/pkg/scan"
	"github.com/scanforge/sigscan/pkg/types"
)

// Version is the server protocol version.
const Version = "1.0.0"

// Server dispatches streamed requests to the scan service.
type Server struct {
	svc     *scan.Service
	encoder *json.Encoder
	decoder *json.Decoder
	log     zerolog.Logger
}

// NewServer creates a streaming server around svc.
func NewServer(svc *scan.Service, in io.Reader, out io.Writer) *Server {
	return &Server{
		svc:     svc,
		encoder: json.NewEncoder(out),
		decoder: json.NewDecoder(bufio.NewReader(in)),
		log:     logging.Component("serve"),
	}
}

// Run starts the server main loop, processing requests until the input
// closes, a "close" request arrives, or the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.sendReady()

	reqChan := make(chan Request, 1)
	errChan := make(chan error, 1)

	go func() {
		for {
			var req Request
			if err := s.decoder.Decode(&req); err != nil {
				errChan <- err
				return
			}
			select {
			case reqChan <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			// Drain requests already decoded before handling EOF, so a
			// request racing input close still gets its response.
			for {
				select {
				case req := <-reqChan:
					if s.processRequest(req) {
						return nil
					}
				default:
					if err == io.EOF {
						return nil
					}
					s.sendError("decode", err.Error())
					return nil
				}
			}
		case req := <-reqChan:
			if s.processRequest(req) {
				return nil
			}
		}
	}
}

// processRequest handles a single request and reports whether the server
// should exit.
func (s *Server) processRequest(req Request) bool {
	switch req.Type {
	case "scan":
		s.handleScan(req.Payload)
	case "reload":
		s.handleReload()
	case "status":
		s.handleStatus()
	case "close":
		return true
	default:
		s.sendError("unknown", "unknown request type: "+req.Type)
	}
	return false
}

func (s *Server) sendReady() {
	data, _ := json.Marshal(ReadyData{Version: Version})
	s.encoder.Encode(Response{
		Success: true,
		Type:    "ready",
		Data:    data,
	})
}

func (s *Server) handleScan(payload json.RawMessage) {
	var p ScanPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError("scan", err.Error())
		return
	}

	var result *types.ScanResult
	var err error
	if p.RuleSet != "" {
		result, err = s.svc.ScanRuleset(p.RuleSet, p.Content)
	} else {
		result, err = s.svc.Scan(p.Content)
	}
	if err != nil {
		s.sendError("scan", err.Error())
		return
	}

	data, _ := json.Marshal(result)
	s.encoder.Encode(Response{
		Success: true,
		Type:    "scan",
		Data:    data,
	})
}

func (s *Server) handleReload() {
	store := s.svc.Store()
	if err := store.Reload(); err != nil {
		s.log.Error().Err(err).Msg("reload failed, previous ruleset stays active")
		s.sendError("reload", err.Error())
		return
	}

	generation := store.Generation()
	s.log.Info().Uint64("generation", generation).Msg("ruleset reloaded")
	data, _ := json.Marshal(ReloadData{Generation: generation})
	s.encoder.Encode(Response{
		Success: true,
		Type:    "reload",
		Data:    data,
	})
}

func (s *Server) handleStatus() {
	store := s.svc.Store()
	status := StatusData{
		Generation: store.Generation(),
		Current:    rulesetStatus(store.Current()),
	}
	for _, name := range store.Alternates() {
		rs, err := store.Named(name)
		if err != nil {
			continue
		}
		if status.Alternates == nil {
			status.Alternates = make(map[string]RulesetStatus)
		}
		status.Alternates[name] = rulesetStatus(rs)
	}

	data, _ := json.Marshal(status)
	s.encoder.Encode(Response{
		Success: true,
		Type:    "status",
		Data:    data,
	})
}

func rulesetStatus(rs *ruleset.RuleSet) RulesetStatus {
	if rs == nil {
		return RulesetStatus{}
	}
	return RulesetStatus{
		ID:         rs.ID(),
		Signatures: rs.Len(),
		CompiledAt: rs.CompiledAt().Unix(),
	}
}

func (s *Server) sendError(reqType, msg string) {
	s.encoder.Encode(Response{
		Success: false,
		Type:    reqType,
		Error:   msg,
	})
}
