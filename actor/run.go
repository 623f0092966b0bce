package actor

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/quantumshieldlabs/qsp-core/wire"
)

// Dispatch decodes one Request, runs its op, and returns the Response
// to write back. It never returns an error itself: protocol-level
// failures (unknown op, bad JSON) are reported as an "invalid_request"
// Response rather than aborting the run loop, matching the actor
// protocol's requirement that one bad line not end the session.
func (a *Actor) Dispatch(req Request) Response {
	fn, ok := dispatch[req.Op]
	if !ok {
		return errorResponse(req.ID, wire.ReasonInvalidRequest, fmt.Sprintf("unknown op %q", req.Op))
	}

	result, err := fn(a, req.Params)
	if err != nil {
		if rej, ok := err.(*wire.RejectError); ok {
			return errorResponse(req.ID, rej.Reason, rej.Detail)
		}
		return errorResponse(req.ID, wire.ReasonInvalidRequest, err.Error())
	}
	return Response{ID: req.ID, OK: true, Result: result}
}

func errorResponse(id string, reason wire.ReasonCode, detail string) Response {
	return Response{ID: id, OK: false, Error: &ErrorBody{Reason: string(reason), Detail: detail}}
}

// Run drives the JSONL read-eval-print loop: one Request per line of r,
// one Response per line of w. A malformed input line (not valid JSON)
// produces an error Response with an empty id rather than stopping the
// loop, since the id could not be recovered.
func (a *Actor) Run(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if encErr := enc.Encode(errorResponse("", wire.ReasonInvalidRequest, fmt.Sprintf("malformed request line: %v", err))); encErr != nil {
				return encErr
			}
			continue
		}
		resp := a.Dispatch(req)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("actor: write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("actor: read request: %w", err)
	}
	return nil
}
