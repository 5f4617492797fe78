package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/ussd/modem"
	"i4.energy/across/ussd/septet"
	"i4.energy/across/ussd/ussd"
)

// ReportPublisher receives every answered request.
type ReportPublisher interface {
	Publish(ctx context.Context, report ussd.Report) error
}

// Dispatcher runs USSD requests against the modem one at a time. The
// serial device admits a single user, so concurrent callers queue on mu.
type Dispatcher struct {
	Logger    *slog.Logger
	Modem     modem.Config
	Mode      septet.Mode
	Publisher ReportPublisher

	mu sync.Mutex
}

// Do sends req using keyword and waits for the answer. A publishing
// failure is logged and does not fail the request.
func (d *Dispatcher) Do(ctx context.Context, req ussd.Request, keyword string) (ussd.Report, error) {
	cmd := req.Command(keyword, d.Mode)
	if !req.Encoded() {
		if unpacked, err := septet.Unpack(cmd.Argument); err == nil {
			d.Logger.Debug("Packed request", "text", req.Text(), "argument", cmd.Argument, "mode", d.Mode.String(), "unpacked", unpacked)
		}
	}

	d.mu.Lock()
	// The caller may have given up while queued.
	if err := ctx.Err(); err != nil {
		d.mu.Unlock()
		return ussd.Report{}, fmt.Errorf("abandoned before reaching the modem: %w", err)
	}
	result, err := modem.Run(ctx, d.Modem, cmd)
	d.mu.Unlock()
	if err != nil {
		return ussd.Report{}, err
	}

	report := ussd.Report{
		Request:    req.String(),
		Command:    cmd.String(),
		Result:     result.Text,
		Line:       result.Line,
		ReceivedAt: time.Now().UTC(),
	}
	d.Logger.Info("Answer received", "request", report.Request, "chatter", result.Chatter, "elapsed", result.Elapsed)

	if d.Publisher != nil {
		if err := d.Publisher.Publish(ctx, report); err != nil {
			d.Logger.Warn("Failed to publish result", "error", err)
		}
	}
	return report, nil
}
