package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"rsicross/internal/strategy"
)

// Decision is one line of the ndjson decision log. Indicator fields are nil
// while undefined.
type Decision struct {
	RunID          string          `json:"run_id"`
	Timestamp      time.Time       `json:"timestamp"`
	BarTime        time.Time       `json:"bar_time"`
	Symbol         string          `json:"symbol"`
	Close          float64         `json:"close"`
	RSI            *float64        `json:"rsi"`
	EWMA           *float64        `json:"rsi_ewma"`
	Delta          *float64        `json:"delta"`
	Direction      string          `json:"direction,omitempty"`
	Zone           string          `json:"zone,omitempty"`
	Intent         strategy.Action `json:"intent,omitempty"`
	TargetPercent  float64         `json:"target_percent"`
	IntentQty      int             `json:"intent_qty"`
	PositionQty    int             `json:"position_qty"`
	Reason         string          `json:"reason,omitempty"`
	Result         string          `json:"result"`
	ApprovalReason string          `json:"approval_reason,omitempty"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	OrderID        string          `json:"order_id,omitempty"`
	ClientOrderID  string          `json:"client_order_id,omitempty"`
}

const (
	ResultSkippedInsufficientData = "skipped_insufficient_data"
	ResultHoldWarmup              = "hold_warmup"
	ResultDataFault               = "data_fault"
	ResultFetchFailed             = "fetch_failed"
	ResultBrokerFailed            = "broker_failed"
	ResultHold                    = "hold"
	ResultRejected                = "rejected"
	ResultDryRun                  = "dry_run"
	ResultOrderBuildFailed        = "order_build_failed"
	ResultOrderFailed             = "order_failed"
	ResultOrderSubmitted          = "order_submitted"
)

type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open decision log %s: %w", path, err)
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

// Append writes decision as one flushed line. Failures go to stderr since
// the decision log must never stop trading.
func (d *DecisionLogger) Append(decision Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	decision.RunID = d.runID
	payload, err := json.Marshal(decision)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal decision: %v\n", err)
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write decision: %v\n", err)
		return
	}
	if err := d.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush decision log: %v\n", err)
	}
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
