package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"cageside/internal/config"
	"cageside/internal/ingest"
	"cageside/internal/syncmgr"

	"github.com/rs/zerolog/log"
)

// Recorder is the part of the sync manager the shell drives.
type Recorder interface {
	Record(ctx context.Context, req ingest.SubmitRequest) (syncmgr.Receipt, error)
	Drain(ctx context.Context) (syncmgr.DrainReport, error)
	Status(ctx context.Context) (syncmgr.Status, error)
	Failed(ctx context.Context) ([]syncmgr.FailedItem, error)
	Clear(ctx context.Context, localIDs ...string) (int, error)
}

// shell reads one command or JSON event per line and writes one JSON reply
// per line. Lines starting with '{' are events; anything else is a command.
type shell struct {
	mgr      Recorder
	defaults config.DeviceConfig
	out      io.Writer
}

type reply struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

func (s *shell) Run(ctx context.Context, in io.Reader) error {
	enc := json.NewEncoder(s.out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		res, err := s.handle(ctx, line)
		r := reply{OK: err == nil, Result: res}
		if err != nil {
			r.Error = err.Error()
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *shell) handle(ctx context.Context, line string) (any, error) {
	if strings.HasPrefix(line, "{") {
		var req ingest.SubmitRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			return nil, err
		}
		s.fillDefaults(&req)
		receipt, err := s.mgr.Record(ctx, req)
		if err != nil {
			log.Warn().Err(err).Str("event_type", req.EventType).Msg("event rejected")
			return nil, err
		}
		return receipt, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "status":
		return s.mgr.Status(ctx)
	case "sync", "drain":
		report, err := s.mgr.Drain(ctx)
		if err != nil {
			return nil, err
		}
		return report.Batch, nil
	case "failed":
		items, err := s.mgr.Failed(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(items))
		for _, it := range items {
			entry := map[string]any{"local_id": it.Item.LocalID, "retry_count": it.Item.RetryCount}
			if it.Err != nil {
				entry["error"] = it.Err.Error()
			}
			out = append(out, entry)
		}
		return out, nil
	case "clear":
		n, err := s.mgr.Clear(ctx, fields[1:]...)
		if err != nil {
			return nil, err
		}
		return map[string]int{"cleared": n}, nil
	default:
		return nil, errUnknownCommand(fields[0])
	}
}

// fillDefaults applies the device profile to fields an operator left out.
func (s *shell) fillDefaults(req *ingest.SubmitRequest) {
	if req.BoutID == "" {
		req.BoutID = s.defaults.BoutID
	}
	if req.DeviceRole == "" {
		req.DeviceRole = s.defaults.DeviceRole
	}
}

type errUnknownCommand string

func (e errUnknownCommand) Error() string {
	return "unknown command " + string(e) + " (use status, sync, failed, clear [local_id...])"
}
