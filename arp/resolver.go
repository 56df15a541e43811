package arp

import (
	"errors"
	"log/slog"
	"time"

	"github.com/soypat/corelink"
	"github.com/soypat/corelink/clock"
	"github.com/soypat/corelink/ethernet"
	"github.com/soypat/corelink/future"
	"github.com/soypat/corelink/internal"
)

// Default option values, per the engine's configuration surface.
const (
	DefaultRequestTimeout  = time.Second
	DefaultRetryCount      = 2
	DefaultCacheTTL        = 600 * time.Second
	DefaultMaxQueries      = 8
	DefaultMaxCacheEntries = 64

	htypeEthernet = 1
	ethHeaderLen  = 14 // Ethernet II header with no VLAN tag.
)

// Config configures a Resolver. LocalHW and LocalIPv4 are required;
// every other field defaults per the package-level Default* constants
// when left zero.
type Config struct {
	LocalHW         [6]byte
	LocalIPv4       [4]byte
	RequestTimeout  time.Duration
	RetryCount      int
	CacheTTL        time.Duration
	MaxQueries      int
	MaxCacheEntries int
	Log             *slog.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = DefaultRetryCount
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = DefaultMaxQueries
	}
	if cfg.MaxCacheEntries <= 0 {
		cfg.MaxCacheEntries = DefaultMaxCacheEntries
	}
}

type logger struct {
	log *slog.Logger
}

func (l logger) error(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelError, msg, attrs...)
}
func (l logger) info(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelInfo, msg, attrs...)
}
func (l logger) debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelDebug, msg, attrs...)
}
func (l logger) trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, internal.LevelTrace, msg, attrs...)
}

// pendingQuery tracks one in-flight resolution: the attempt counter
// and deadline timer that drive the retry/timeout transitions, plus
// the deferred result its callers hold.
type pendingQuery struct {
	target   [4]byte
	attempt  int
	timer    clock.Timer
	handle   future.Handle[[6]byte]
	resolver *future.Resolver[[6]byte]
}

// Resolver is the ARP state machine: it owns the cache, the set of
// in-flight queries, and enqueues REQUEST/REPLY frames onto the
// shared event queue it was constructed with. It never reads the wall
// clock; every state transition is driven by an explicit now supplied
// by Query, Receive or Advance.
type Resolver struct {
	logger
	hwAddr         [6]byte
	ipv4Addr       [4]byte
	cache          Cache
	queries        []pendingQuery
	maxQueries     int
	requestTimeout time.Duration
	retryCount     int
	queue          *corelink.Queue
}

var errZeroAddr = errors.New("arp: LocalHW and LocalIPv4 are required")

// NewResolver builds a Resolver that enqueues its outbound frames
// onto queue. queue is shared with the rest of the engine so that a
// single poll loop drains every layer's events in order.
func NewResolver(cfg Config, queue *corelink.Queue) (*Resolver, error) {
	if internal.IsZeroed(cfg.LocalHW) || internal.IsZeroed(cfg.LocalIPv4) {
		return nil, errZeroAddr
	}
	cfg.setDefaults()
	return &Resolver{
		logger:         logger{log: cfg.Log},
		hwAddr:         cfg.LocalHW,
		ipv4Addr:       cfg.LocalIPv4,
		cache:          NewCache(cfg.MaxCacheEntries, cfg.CacheTTL),
		maxQueries:     cfg.MaxQueries,
		requestTimeout: cfg.RequestTimeout,
		retryCount:     cfg.RetryCount,
		queue:          queue,
	}, nil
}

// Query initiates or attaches to an ARP resolution for target,
// returning a deferred result for the resolved link address. See
// transitions 1-3 of the ARP resolver state machine.
func (r *Resolver) Query(target [4]byte, now time.Time) (future.Handle[[6]byte], error) {
	if link, ok := r.cache.Get(target, now); ok {
		h, res := future.New[[6]byte]()
		res.Complete(link)
		return h, nil
	}
	for i := range r.queries {
		if r.queries[i].target == target {
			return r.queries[i].handle.Attach(), nil
		}
	}
	if len(r.queries) >= r.maxQueries {
		r.compactQueries()
		if len(r.queries) >= r.maxQueries {
			return future.Handle[[6]byte]{}, corelink.ErrResourceExhaust
		}
	}
	h, res := future.New[[6]byte]()
	res.SetAdvance(r.Advance)
	q := pendingQuery{target: target, attempt: 0, handle: h, resolver: res}
	q.timer.Arm(now, r.requestTimeout)
	r.queries = append(r.queries, q)
	r.queue.PushTransmit(r.buildRequest(target))
	r.trace("arp query started", internal.SlogAddr4("target", &target))
	return h, nil
}

// compactQueries drops queries whose deferred result has already
// reached a terminal state, freeing slots for new ones.
func (r *Resolver) compactQueries() {
	validOff := 0
	for i := range r.queries {
		if !r.queries[i].resolver.Done() {
			r.queries[validOff] = r.queries[i]
			validOff++
		}
	}
	r.queries = r.queries[:validOff]
}

// CancelQuery drops the pending query for target, if any. No further
// requests are sent and no timeout is ever delivered; handles already
// returned by Query simply stay pending. A reply that arrives after
// cancellation still populates the cache opportunistically through
// the ordinary receive path.
func (r *Resolver) CancelQuery(target [4]byte) {
	for i := range r.queries {
		if r.queries[i].target == target {
			r.queries = append(r.queries[:i], r.queries[i+1:]...)
			r.trace("arp query cancelled", internal.SlogAddr4("target", &target))
			return
		}
	}
}

// Advance drives timer-based transitions for every pending query:
// retry on expiry while attempts remain, else fail with Timeout. The
// engine calls it from Poll only when the event queue was empty on
// entry, so a freshly queued REQUEST is never double-sent; a Handle
// returned by Query also calls it from its own Poll.
func (r *Resolver) Advance(now time.Time) {
	validOff := 0
	for i := range r.queries {
		q := &r.queries[i]
		if q.resolver.Done() {
			continue // Already resolved by an earlier Receive; drop silently.
		}
		if q.timer.Fired(now) {
			if q.attempt < r.retryCount {
				q.attempt++
				q.timer.Arm(now, r.requestTimeout)
				r.queue.PushTransmit(r.buildRequest(q.target))
				r.trace("arp retry", internal.SlogAddr4("target", &q.target), slog.Int("attempt", q.attempt))
			} else {
				q.resolver.Fail(corelink.ErrTimeout)
				r.debug("arp timeout", internal.SlogAddr4("target", &q.target))
				continue // Drop the now-terminal query.
			}
		}
		r.queries[validOff] = *q
		validOff++
	}
	r.queries = r.queries[:validOff]
}

// Receive handles an inbound ARP frame (the ARP payload following the
// Ethernet header, already stripped by the caller). A REQUEST not
// targeting this node is only refreshed into the cache when its
// sender is already known; requests from strangers are Ignored
// without learning or replying. This is policy, not protocol: it is
// what distinguishes nodes that do and do not answer a broadcast.
func (r *Resolver) Receive(payload []byte, now time.Time) error {
	afrm, err := NewFrame(payload)
	if err != nil {
		return corelink.ErrMalformed
	}
	var v corelink.Validator
	afrm.ValidateSize(&v)
	if v.HasError() {
		return corelink.ErrMalformed
	}
	htype, _ := afrm.Hardware()
	ptype, plen := afrm.Protocol()
	if ptype != ethernet.TypeIPv4 || plen != 4 {
		return corelink.ErrIgnored // Non-IPv4 ARP is out of scope, not an error.
	}
	if htype != htypeEthernet {
		return corelink.ErrUnsupported
	}
	senderHW, senderProto := afrm.Sender4()
	_, targetProto := afrm.Target4()

	switch afrm.Operation() {
	case OpRequest:
		if *targetProto != r.ipv4Addr {
			if _, known := r.cache.Get(*senderProto, now); !known {
				return corelink.ErrIgnored // Unsolicited request from a stranger: do not learn, do not reply.
			}
			r.cache.Insert(*senderProto, *senderHW, now)
			return nil
		}
		r.cache.Insert(*senderProto, *senderHW, now)
		r.satisfyQuery(*senderProto, *senderHW, now)
		r.queue.PushTransmit(r.buildReply(*senderHW, *senderProto))
		return nil

	case OpReply:
		r.cache.Insert(*senderProto, *senderHW, now)
		r.satisfyQuery(*senderProto, *senderHW, now)
		return nil

	default:
		return corelink.ErrUnsupported
	}
}

func (r *Resolver) satisfyQuery(proto [4]byte, link [6]byte, now time.Time) {
	for i := range r.queries {
		if r.queries[i].target == proto && !r.queries[i].resolver.Done() {
			r.queries[i].resolver.Complete(link)
			r.info("arp resolved", internal.SlogAddr4("target", &proto), internal.SlogAddr6("link", &link))
			return
		}
	}
}

// ExportCache returns a stable-ordered snapshot of every live cache entry.
func (r *Resolver) ExportCache(now time.Time) []Entry { return r.cache.Export(now) }

func (r *Resolver) buildRequest(target [4]byte) []byte {
	// The ARP body (28 octets) is short of the Ethernet minimum
	// payload, so the buffer is sized for the padded frame up front.
	buf := make([]byte, ethHeaderLen+ethernet.MinPayloadSize)
	efrm, _ := ethernet.NewFrame(buf)
	broadcast := ethernet.BroadcastAddr()
	*efrm.DestinationHardwareAddr() = broadcast
	*efrm.SourceHardwareAddr() = r.hwAddr
	efrm.SetEtherType(ethernet.TypeARP)
	afrm, _ := NewFrame(efrm.Payload())
	afrm.ClearHeader()
	afrm.SetHardware(htypeEthernet, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(OpRequest)
	senderHW, senderProto := afrm.Sender4()
	*senderHW, *senderProto = r.hwAddr, r.ipv4Addr
	_, targetProto := afrm.Target4()
	*targetProto = target
	return efrm.Pad(sizeHeaderv4).RawData()
}

func (r *Resolver) buildReply(dstHW [6]byte, dstProto [4]byte) []byte {
	buf := make([]byte, ethHeaderLen+ethernet.MinPayloadSize)
	efrm, _ := ethernet.NewFrame(buf)
	*efrm.DestinationHardwareAddr() = dstHW
	*efrm.SourceHardwareAddr() = r.hwAddr
	efrm.SetEtherType(ethernet.TypeARP)
	afrm, _ := NewFrame(efrm.Payload())
	afrm.ClearHeader()
	afrm.SetHardware(htypeEthernet, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(OpReply)
	senderHW, senderProto := afrm.Sender4()
	*senderHW, *senderProto = r.hwAddr, r.ipv4Addr
	targetHW, targetProto := afrm.Target4()
	*targetHW, *targetProto = dstHW, dstProto
	return efrm.Pad(sizeHeaderv4).RawData()
}
