package decoder

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/shannon-mcp/shannon-mcp/pkg/types"
)

// Stats mirrors original_source/streaming/jsonl_parser.py's get_stats
// output for diagnostics (spec §4.3 expansion), plus the backpressure
// controller's metrics (spec §5) for the RPC surface to consult.
type Stats struct {
	LinesProcessed int64
	ParseErrors    int64
	BufferSize     int
	HasPartialJSON bool
	Backpressure   BackpressureMetrics
}

// Decoder turns a CLI child's raw byte stream into an ordered sequence
// of types.DecodedMessage values (spec §4.3). It is not safe for
// concurrent Feed/Run calls from multiple goroutines, but Stats may be
// read from any goroutine.
type Decoder struct {
	sessionID     string
	maxPartialAge time.Duration
	maxLineBytes  int

	out chan types.DecodedMessage
	bp  *backpressureController

	mu             sync.Mutex
	carry          []byte
	partial        string
	partialSetAt   time.Time
	linesProcessed int64
	parseErrors    int64
}

// New creates a Decoder for one session. maxPartialAge bounds how long an
// unbalanced-bracket partial line is held before being flushed as a
// ParseErrorMessage; maxLineBytes bounds the longest line (after partial
// reassembly) the decoder will attempt to parse before giving up on it.
func New(sessionID string, maxPartialAge time.Duration, maxLineBytes int) *Decoder {
	if maxPartialAge <= 0 {
		maxPartialAge = 5 * time.Second
	}
	if maxLineBytes <= 0 {
		maxLineBytes = 1 << 20
	}
	const outBufSize = 64
	return &Decoder{
		sessionID:     sessionID,
		maxPartialAge: maxPartialAge,
		maxLineBytes:  maxLineBytes,
		out:           make(chan types.DecodedMessage, outBufSize),
		bp:            newBackpressureController(outBufSize),
	}
}

// Messages returns the channel of decoded messages, in arrival order.
// Run closes it when the source is exhausted or an error occurs.
func (d *Decoder) Messages() <-chan types.DecodedMessage {
	return d.out
}

// Stats returns a snapshot of the decoder's counters.
func (d *Decoder) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		LinesProcessed: d.linesProcessed,
		ParseErrors:    d.parseErrors,
		BufferSize:     len(d.carry),
		HasPartialJSON: d.partial != "",
		Backpressure:   d.bp.stats(),
	}
}

// Run reads r until EOF or ctx is cancelled, feeding every chunk through
// the framer and emitting decoded messages on Messages(). It closes the
// output channel before returning. A stale-partial sweeper runs
// alongside the read loop so a child that stops writing mid-object
// still gets its partial buffer flushed without waiting for more input.
func (d *Decoder) Run(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(d.out)

	go d.sweepLoop(ctx)

	buf := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := r.Read(buf)
		if n > 0 {
			for _, msg := range d.feed(buf[:n]) {
				select {
				case d.out <- msg:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			d.bp.checkAndWait(ctx, len(d.out))
		}
		if err != nil {
			if err == io.EOF {
				for _, msg := range d.flushEndOfStream() {
					select {
					case d.out <- msg:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				return nil
			}
			return err
		}
	}
}

// sweepLoop periodically flushes a partial-JSON buffer that has gone
// stale because the child stopped writing mid-object, so a hung or
// confused child doesn't hold a session's last line forever.
func (d *Decoder) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.maxPartialAge)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if msg, ok := d.sweepStalePartial(); ok {
				select {
				case d.out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Feed processes a single chunk of raw bytes outside of Run, for callers
// that already own a read loop (or tests feeding fixed chunks). It
// returns the messages produced by this call only.
func (d *Decoder) Feed(chunk []byte) []types.DecodedMessage {
	return d.feed(chunk)
}

// FlushEndOfStream processes any trailing unterminated line and stale
// partial buffer, for callers driving Feed manually.
func (d *Decoder) FlushEndOfStream() []types.DecodedMessage {
	return d.flushEndOfStream()
}

func (d *Decoder) feed(chunk []byte) []types.DecodedMessage {
	d.mu.Lock()
	d.carry = append(d.carry, chunk...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(d.carry, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, append([]byte(nil), d.carry[:idx]...))
		d.carry = d.carry[idx+1:]
	}
	d.mu.Unlock()

	var out []types.DecodedMessage
	for _, line := range lines {
		if msg, ok := d.processLine(string(line)); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (d *Decoder) flushEndOfStream() []types.DecodedMessage {
	var out []types.DecodedMessage

	d.mu.Lock()
	leftover := string(d.carry)
	d.carry = nil
	d.mu.Unlock()

	if strings.TrimSpace(leftover) != "" {
		if msg, ok := d.processLine(leftover); ok {
			out = append(out, msg)
		}
	}

	if msg, ok := d.sweepStalePartialNow(); ok {
		out = append(out, msg)
	}
	return out
}

// processLine applies the framing rules of spec §4.3 to one
// newline-delimited line (already stripped of its trailing \n).
func (d *Decoder) processLine(raw string) (types.DecodedMessage, bool) {
	raw = strings.TrimRight(raw, "\r")

	d.mu.Lock()
	if d.partial != "" {
		raw = d.partial + raw
		d.partial = ""
	}
	d.mu.Unlock()

	line := strings.TrimSpace(raw)
	if line == "" {
		return nil, false
	}

	d.mu.Lock()
	d.linesProcessed++
	d.mu.Unlock()

	if len(line) > d.maxLineBytes {
		d.mu.Lock()
		d.parseErrors++
		d.mu.Unlock()
		return types.ParseErrorMessage{Line: truncate(line, 500), Error: "line exceeds maximum buffered size"}, true
	}

	if !looksLikeJSON(line) {
		return types.PlainTextMessage{Text: line}, true
	}

	msg, err := types.DecodeLine([]byte(line))
	if err == nil {
		return msg, true
	}

	if bracketsBalanced(line) {
		d.mu.Lock()
		d.parseErrors++
		d.mu.Unlock()
		return types.ParseErrorMessage{Line: truncate(line, 500), Error: err.Error()}, true
	}

	d.mu.Lock()
	d.partial = line
	d.partialSetAt = time.Now()
	d.mu.Unlock()
	return nil, false
}

func (d *Decoder) sweepStalePartial() (types.DecodedMessage, bool) {
	d.mu.Lock()
	if d.partial == "" || time.Since(d.partialSetAt) < d.maxPartialAge {
		d.mu.Unlock()
		return nil, false
	}
	line := d.partial
	d.partial = ""
	d.parseErrors++
	d.mu.Unlock()
	return types.ParseErrorMessage{Line: truncate(line, 500), Error: "partial JSON buffer exceeded flush threshold"}, true
}

// sweepStalePartialNow flushes any pending partial regardless of age,
// used at end-of-stream where there is no more input to wait for.
func (d *Decoder) sweepStalePartialNow() (types.DecodedMessage, bool) {
	d.mu.Lock()
	if d.partial == "" {
		d.mu.Unlock()
		return nil, false
	}
	line := d.partial
	d.partial = ""
	d.parseErrors++
	d.mu.Unlock()
	return types.ParseErrorMessage{Line: truncate(line, 500), Error: "stream ended with unterminated JSON"}, true
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// bracketsBalanced mirrors jsonl_parser.py's _is_partial_json heuristic:
// a line is a partial-JSON candidate only when it has strictly more
// opening braces/brackets than closing ones.
func bracketsBalanced(line string) bool {
	var openBraces, closeBraces, openBrackets, closeBrackets int
	for _, r := range line {
		switch r {
		case '{':
			openBraces++
		case '}':
			closeBraces++
		case '[':
			openBrackets++
		case ']':
			closeBrackets++
		}
	}
	return openBraces <= closeBraces && openBrackets <= closeBrackets
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
