package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// ServeStdio runs the line-framed stdio transport: one JSON-RPC request per
// line on r, one JSON-RPC response per line on w. Returns when r reaches
// EOF or ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if writeErr := writeResponse(w, errorResponse(nil, codeParseError, "invalid JSON")); writeErr != nil {
				return writeErr
			}
			continue
		}

		resp := s.Dispatch(ctx, req)
		if err := writeResponse(w, resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("mcpserver_stdio_scan_failed")
		return err
	}
	return nil
}

func writeResponse(w io.Writer, resp Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("mcpserver: marshal response: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
