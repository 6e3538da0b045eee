package harness

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-fastkale-bot/internal/fastkale"
	"github.com/raine/telegram-fastkale-bot/internal/storage"
)

// Caller performs raw backend calls.
type Caller interface {
	Call(ctx context.Context, path string, opts fastkale.CallOptions) (*fastkale.CallResult, error)
}

// Recorder performs backend calls, keeps them in the call log and prints
// each result entry.
type Recorder struct {
	api   Caller
	calls storage.CallLogStore
	out   io.Writer
}

func NewRecorder(api Caller, calls storage.CallLogStore, out io.Writer) *Recorder {
	return &Recorder{api: api, calls: calls, out: out}
}

// Do performs one call. A transport failure is recorded with status 0 and
// returned; a backend failure is a normal result with OK false.
func (r *Recorder) Do(ctx context.Context, label, path string, opts fastkale.CallOptions) (*fastkale.CallResult, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	entry := &storage.CallLogEntry{
		Label:  label,
		Method: method,
		Path:   path,
	}

	res, err := r.api.Call(ctx, path, opts)
	if err != nil {
		entry.RequestPayload = opts.Body
		entry.ResponseBody = map[string]any{"error": err.Error()}
	} else {
		entry.Status = res.Status
		entry.OK = res.OK
		entry.RequestHeaders = res.RequestHeaders
		entry.RequestPayload = res.RequestPayload
		entry.ResponseBody = res.Body
	}

	if recErr := r.calls.AddCall(entry); recErr != nil {
		log.Warn().Err(recErr).Str("path", path).Msg("failed to record call")
	}
	Render(r.out, *entry)

	return res, err
}
