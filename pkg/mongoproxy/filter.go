// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mongoproxy

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/absmach/mongoproxy/pkg/accesslog"
	"github.com/absmach/mongoproxy/pkg/bson"
	"github.com/absmach/mongoproxy/pkg/buffer"
	"github.com/absmach/mongoproxy/pkg/fault"
	"github.com/absmach/mongoproxy/pkg/network"
	"github.com/absmach/mongoproxy/pkg/runtime"
	"github.com/absmach/mongoproxy/pkg/stats"
	"github.com/absmach/mongoproxy/pkg/wire"
)

const (
	gateProxyEnabled        = "mongo.proxy_enabled"
	gateConnectionLogging   = "mongo.connection_logging_enabled"
	gateLogging             = "mongo.logging_enabled"
	gateFaultDelayPercent   = "mongo.fault.delay.percent"
	gateFaultDelayDuration  = "mongo.fault.delay.duration_ms"
)

// Config constructs a Filter. Stats, Runtime, and AccessLog default to
// no-op/process-local implementations when left nil, so a Filter is usable
// standalone in tests without wiring every collaborator.
type Config struct {
	Prefix           string
	Stats            stats.Sink
	Runtime          runtime.Loader
	AccessLog        *accesslog.AccessLog
	Fault            fault.Config
	MaxMessageLength int32
}

type activeRequest struct {
	requestID    int32
	start        time.Time
	statPrefixes []string
	collection   string
	command      string
	caller       string
	flags        uint32
}

// Filter is one connection's worth of proxy state. It is safe for
// concurrent OnData/OnWrite/OnEvent calls (the host demultiplexes the two
// directions onto separate goroutines); every exported method that reads or
// changes filter state takes the same mutex.
type Filter struct {
	mu sync.Mutex

	prefix    string
	sink      stats.Sink
	loader    runtime.Loader
	accessLog *accesslog.AccessLog
	faultCfg  fault.Config

	reqBuf   *buffer.Watermark
	replyBuf *buffer.Watermark

	reqDecoder   *wire.Decoder
	replyDecoder *wire.Decoder

	active          map[int32]*activeRequest
	decodingErrored bool

	pendingDelay   bool
	delayTimer     *time.Timer
	delaysInjected uint64

	cb network.ReadFilterCallbacks
}

// New returns a ready Filter. Decoders are wired to the filter's own
// internal buffers, never the host's connection buffer, so that inspecting
// a message never removes bytes the host still needs to forward.
func New(cfg Config) *Filter {
	if cfg.Stats == nil {
		cfg.Stats = stats.Noop{}
	}
	if cfg.Runtime == nil {
		cfg.Runtime = runtime.NewStatic()
	}

	f := &Filter{
		prefix:    cfg.Prefix,
		sink:      cfg.Stats,
		loader:    cfg.Runtime,
		accessLog: cfg.AccessLog,
		faultCfg:  cfg.Fault,
		reqBuf:    buffer.New(nil, nil),
		replyBuf:  buffer.New(nil, nil),
		active:    make(map[int32]*activeRequest),
	}
	f.reqDecoder = wire.NewDecoder(wire.Callbacks{
		OnQuery:       f.onQuery,
		OnGetMore:     f.onGetMore,
		OnInsert:      f.onInsert,
		OnKillCursors: f.onKillCursors,
	}, cfg.MaxMessageLength)
	f.replyDecoder = wire.NewDecoder(wire.Callbacks{
		OnReply: f.onReply,
	}, cfg.MaxMessageLength)
	return f
}

// InitializeReadFilterCallbacks implements network.ReadFilter.
func (f *Filter) InitializeReadFilterCallbacks(cb network.ReadFilterCallbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

// OnNewConnection implements network.ReadFilter.
func (f *Filter) OnNewConnection() network.FilterStatus {
	return network.Continue
}

// OnData implements network.ReadFilter: bytes from downstream.
func (f *Filter) OnData(buf *buffer.Watermark) network.FilterStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.loader.FeatureEnabled(gateProxyEnabled, 100) {
		return network.Continue
	}

	if !f.decodingErrored && buf.Len() > 0 {
		f.reqBuf.Add(append([]byte(nil), buf.Bytes()...))
		if err := f.reqDecoder.Feed(f.reqBuf); err != nil {
			f.decodingErrored = true
			f.sink.Counter(f.prefix + ".decoding_error")
		}
	}

	if f.pendingDelay {
		return network.StopIteration
	}
	return network.Continue
}

// OnWrite implements network.ReadFilter: bytes from upstream. Always
// returns Continue; fault injection only gates the request side.
func (f *Filter) OnWrite(buf *buffer.Watermark) network.FilterStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.loader.FeatureEnabled(gateProxyEnabled, 100) {
		return network.Continue
	}
	if buf.Len() > 0 {
		f.replyBuf.Add(append([]byte(nil), buf.Bytes()...))
		_ = f.replyDecoder.Feed(f.replyBuf) // reply-side decode errors are not fatal to the request side
	}
	return network.Continue
}

// OnEvent implements network.ReadFilter. The counter names intentionally
// mismatch the event direction: see the connection-destroy accounting note
// in DESIGN.md.
func (f *Filter) OnEvent(event network.ConnectionEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch event {
	case network.RemoteClose:
		if len(f.active) > 0 {
			f.sink.Counter(f.prefix + ".cx_destroy_local_with_active_rq")
		}
	case network.LocalClose:
		if len(f.active) > 0 {
			f.sink.Counter(f.prefix + ".cx_destroy_remote_with_active_rq")
		}
	case network.Connected:
		if f.loader.FeatureEnabled(gateConnectionLogging, 100) {
			// connection-level logging line would be emitted here; the
			// access log contract only pins per-request records.
		}
	}

	if f.delayTimer != nil {
		f.delayTimer.Stop()
	}
}

// DelaysInjected reports the number of fixed delays armed so far.
func (f *Filter) DelaysInjected() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delaysInjected
}

func (f *Filter) onQuery(q *wire.Query) {
	f.sink.Counter(f.prefix + ".op_query")
	f.sink.GaugeAdd(f.prefix+".op_query_active", 1)

	if q.Flags&wire.QueryFlagTailableCursor != 0 {
		f.sink.Counter(f.prefix + ".op_query_tailable_cursor")
	}
	if q.Flags&wire.QueryFlagNoCursorTimeout != 0 {
		f.sink.Counter(f.prefix + ".op_query_no_cursor_timeout")
	}
	if q.Flags&wire.QueryFlagAwaitData != 0 {
		f.sink.Counter(f.prefix + ".op_query_await_data")
	}
	if q.Flags&wire.QueryFlagExhaust != 0 {
		f.sink.Counter(f.prefix + ".op_query_exhaust")
	}

	if _, ok := q.Query.Get("$maxTimeMS"); !ok {
		f.sink.Counter(f.prefix + ".op_query_no_max_time")
	}

	hasShardKey, isMultiGet := shardKeyReference(q.Query)
	scatter := !hasShardKey
	if isMultiGet {
		f.sink.Counter(f.prefix + ".op_query_multi_get")
	}
	if scatter {
		f.sink.Counter(f.prefix + ".op_query_scatter_get")
	}

	rec := &activeRequest{requestID: q.Header.RequestID, start: time.Now(), flags: q.Flags}
	caller := callingFunction(q.Query)
	rec.caller = caller

	_, coll, isCmd := splitCollectionName(q.FullCollectionName)
	if isCmd {
		cmdName := q.Query.First()
		rec.command = cmdName
		base := fmt.Sprintf("%s.cmd.%s", f.prefix, cmdName)
		f.sink.Counter(base + ".total")
		rec.statPrefixes = append(rec.statPrefixes, base)
	} else {
		rec.collection = coll
		base := fmt.Sprintf("%s.collection.%s", f.prefix, coll)
		f.sink.Counter(base + ".query.total")
		if scatter {
			f.sink.Counter(base + ".query.scatter_get")
		}
		if isMultiGet {
			f.sink.Counter(base + ".query.multi_get")
		}
		rec.statPrefixes = append(rec.statPrefixes, base+".query")

		if caller != "" {
			callsiteBase := fmt.Sprintf("%s.collection.%s.callsite.%s", f.prefix, coll, caller)
			f.sink.Counter(callsiteBase + ".query.total")
			if scatter {
				f.sink.Counter(callsiteBase + ".query.scatter_get")
			}
			if isMultiGet {
				f.sink.Counter(callsiteBase + ".query.multi_get")
			}
			rec.statPrefixes = append(rec.statPrefixes, callsiteBase+".query")
		}
	}

	f.active[q.Header.RequestID] = rec
	f.maybeInjectFault()
}

func (f *Filter) onGetMore(*wire.GetMore) {
	f.sink.Counter(f.prefix + ".op_get_more")
}

func (f *Filter) onInsert(*wire.Insert) {
	f.sink.Counter(f.prefix + ".op_insert")
}

func (f *Filter) onKillCursors(*wire.KillCursors) {
	f.sink.Counter(f.prefix + ".op_kill_cursors")
}

func (f *Filter) onReply(r *wire.Reply) {
	f.sink.Counter(f.prefix + ".op_reply")
	if r.ResponseFlags&wire.ReplyFlagCursorNotFound != 0 {
		f.sink.Counter(f.prefix + ".op_reply_cursor_not_found")
	}
	if r.ResponseFlags&wire.ReplyFlagQueryFailure != 0 {
		f.sink.Counter(f.prefix + ".op_reply_query_failure")
	}
	if r.CursorID != 0 {
		f.sink.Counter(f.prefix + ".op_reply_valid_cursor")
	}

	rec, ok := f.active[r.Header.ResponseTo]
	if !ok {
		return
	}
	delete(f.active, r.Header.ResponseTo)
	f.sink.GaugeAdd(f.prefix+".op_query_active", -1)

	latency := time.Since(rec.start)
	size := replyBodySize(r.Documents)
	for _, base := range rec.statPrefixes {
		f.sink.DeliverHistogramToSinks(base+".reply_num_docs", float64(len(r.Documents)))
		f.sink.DeliverHistogramToSinks(base+".reply_size", float64(size))
		f.sink.DeliverTimingToSinks(base+".reply_time_ms", latency)
	}

	if f.accessLog != nil && f.loader.FeatureEnabled(gateLogging, 100) {
		f.accessLog.LogRequest(accesslog.Record{
			Collection: rec.collection,
			Command:    rec.command,
			Caller:     rec.caller,
			Flags:      rec.flags,
			Latency:    latency,
			MatchedAt:  time.Now(),
		})
	}
}

func (f *Filter) maybeInjectFault() {
	if !f.faultCfg.Enabled || f.pendingDelay {
		return
	}
	if !f.loader.FeatureEnabled(gateFaultDelayPercent, f.faultCfg.DelayPercent) {
		return
	}
	durationMS := f.loader.GetInteger(gateFaultDelayDuration, int64(f.faultCfg.DelayDurationMS))

	f.pendingDelay = true
	f.delaysInjected++
	f.sink.Counter(f.prefix + ".delays_injected")
	f.delayTimer = time.AfterFunc(time.Duration(durationMS)*time.Millisecond, f.onDelayExpired)
}

func (f *Filter) onDelayExpired() {
	f.mu.Lock()
	f.pendingDelay = false
	cb := f.cb
	f.mu.Unlock()

	if cb != nil {
		cb.ContinueReading()
	}
}

// shardKeyReference reports whether query references the _id shard key at
// all (scalar equality or $in), and separately whether it does so via $in
// (which additionally counts as a multi-get).
func shardKeyReference(query *bson.Document) (hasShardKey, isMultiGet bool) {
	elem, ok := query.Get("_id")
	if !ok {
		return false, false
	}
	if elem.Type == bson.TypeDocument {
		if in, ok := elem.Doc.Get("$in"); ok && in.Type == bson.TypeArray {
			return true, true
		}
	}
	return true, false
}

// callingFunction extracts $comment.callingFunction when $comment carries a
// JSON object string, returning "" when absent or unparsable.
func callingFunction(query *bson.Document) string {
	s, ok := query.GetString("$comment")
	if !ok {
		return ""
	}
	return extractCallingFunction(s)
}

func splitCollectionName(full string) (db, coll string, isCmd bool) {
	idx := strings.IndexByte(full, '.')
	if idx < 0 {
		return full, "", false
	}
	db = full[:idx]
	coll = full[idx+1:]
	return db, coll, coll == "$cmd"
}

func replyBodySize(docs []*bson.Document) int {
	total := 0
	for _, d := range docs {
		total += len(bson.Encode(d))
	}
	return total
}
