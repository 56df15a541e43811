// Package engine wires the wire codecs, the ARP resolver and the
// event queue into the single façade a host drives: poll, receive,
// arp_query. It owns no goroutines and reads no wall clock; every
// entry point takes the current instant as an explicit argument, per
// the single-threaded cooperative model the rest of this module
// implements.
package engine

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"time"

	"github.com/soypat/corelink"
	"github.com/soypat/corelink/arp"
	"github.com/soypat/corelink/ethernet"
	"github.com/soypat/corelink/future"
	"github.com/soypat/corelink/internal"
	"github.com/soypat/corelink/ipv4"
)

// Config configures an Engine. LocalHW and LocalIPv4 are required;
// the remaining fields mirror the configuration surface's defaults
// (see arp.Config) when left zero.
type Config struct {
	LocalHW         [6]byte
	LocalIPv4       [4]byte
	RequestTimeout  time.Duration
	RetryCount      int
	CacheTTL        time.Duration
	MaxQueries      int
	MaxCacheEntries int
	// AppendFCS, if true, appends a trailing 32-bit Ethernet CRC to
	// every Transmit event the engine emits. Only needed when the
	// host's packet I/O adapter does not generate the FCS itself
	// (e.g. a raw TAP device instead of a real NIC).
	AppendFCS bool
	Log       *slog.Logger
}

// Options is the read-only view of an Engine's effective configuration.
type Options struct {
	LocalHW        [6]byte
	LocalIPv4      [4]byte
	RequestTimeout time.Duration
	RetryCount     int
	CacheTTL       time.Duration
	AppendFCS      bool
}

type logger struct{ log *slog.Logger }

func (l logger) error(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelError, msg, attrs...)
}
func (l logger) info(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.log, slog.LevelInfo, msg, attrs...)
}

// Engine is the protocol core: it owns the ARP resolver, the shared
// event queue and the local addresses, and dispatches inbound frames
// by EtherType. It is the sole mutator of every piece of state it
// owns; nothing else ever writes them.
type Engine struct {
	logger
	hwAddr    [6]byte
	ipv4Addr  [4]byte
	opts      Options
	queue     corelink.Queue
	resolver  *arp.Resolver
	appendFCS bool
	ipID      uint16
}

const ethHeaderLen = 14 // Ethernet II header with no VLAN tag.

var errZeroAddr = errors.New("engine: LocalHW and LocalIPv4 are required")

// New builds an Engine from cfg, returning an error if the required
// local addresses are missing.
func New(cfg Config) (*Engine, error) {
	if internal.IsZeroed(cfg.LocalHW) || internal.IsZeroed(cfg.LocalIPv4) {
		return nil, errZeroAddr
	}
	e := &Engine{
		logger:    logger{log: cfg.Log},
		hwAddr:    cfg.LocalHW,
		ipv4Addr:  cfg.LocalIPv4,
		appendFCS: cfg.AppendFCS,
	}
	acfg := arp.Config{
		LocalHW:         cfg.LocalHW,
		LocalIPv4:       cfg.LocalIPv4,
		RequestTimeout:  cfg.RequestTimeout,
		RetryCount:      cfg.RetryCount,
		CacheTTL:        cfg.CacheTTL,
		MaxQueries:      cfg.MaxQueries,
		MaxCacheEntries: cfg.MaxCacheEntries,
		Log:             cfg.Log,
	}
	resolver, err := arp.NewResolver(acfg, &e.queue)
	if err != nil {
		return nil, err
	}
	e.resolver = resolver
	e.opts = Options{
		LocalHW:        cfg.LocalHW,
		LocalIPv4:      cfg.LocalIPv4,
		RequestTimeout: acfgOr(cfg.RequestTimeout, arp.DefaultRequestTimeout),
		RetryCount:     acfgOrInt(cfg.RetryCount, arp.DefaultRetryCount),
		CacheTTL:       acfgOr(cfg.CacheTTL, arp.DefaultCacheTTL),
		AppendFCS:      cfg.AppendFCS,
	}
	return e, nil
}

func acfgOr(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func acfgOrInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Options returns the engine's effective, read-only configuration.
func (e *Engine) Options() Options { return e.opts }

// ArpQuery initiates or attaches to an ARP resolution for target. See
// arp.Resolver.Query for the coalescing and cache-hit rules.
func (e *Engine) ArpQuery(target [4]byte, now time.Time) (future.Handle[[6]byte], error) {
	return e.resolver.Query(target, now)
}

// ExportARPCache returns a stable-ordered snapshot of every live ARP
// cache entry.
func (e *Engine) ExportARPCache(now time.Time) []arp.Entry {
	return e.resolver.ExportCache(now)
}

// Receive parses frame as an Ethernet II frame and dispatches it by
// EtherType: ARP frames are handed to the resolver, IPv4 datagrams
// are validated and, once sealed-valid, surfaced to the host as an
// EventIPv4Datagram the next time Poll is called. Frames not
// addressed to this node (unicast, non-broadcast) are dropped with
// ErrIgnored, matching a real link layer's behavior.
func (e *Engine) Receive(frame []byte, now time.Time) error {
	efrm, err := ethernet.NewFrame(frame)
	if err != nil {
		return corelink.ErrMalformed
	}
	var v corelink.Validator
	efrm.ValidateSize(&v)
	if v.HasError() {
		return kindOf(&v)
	}
	dst := efrm.DestinationHardwareAddr()
	if !efrm.IsBroadcast() && *dst != e.hwAddr {
		e.info("engine: drop frame not addressed to us")
		return corelink.ErrIgnored
	}
	switch efrm.EtherTypeOrSize() {
	case ethernet.TypeARP:
		return e.resolver.Receive(efrm.Payload(), now)
	case ethernet.TypeIPv4:
		return e.receiveIPv4(efrm.Payload())
	default:
		return corelink.ErrUnsupported
	}
}

// SendIPv4 builds, seals and enqueues an outbound IPv4 datagram
// carrying payload under proto, addressed to dstHW/dstIP. The
// identification field is derived from a per-engine pseudo-random
// counter seeded forward on every call so consecutive datagrams do
// not repeat IDs.
func (e *Engine) SendIPv4(dstHW [6]byte, dstIP [4]byte, proto corelink.IPProto, payload []byte) error {
	total := 20 + len(payload)
	// Size the buffer for the padded frame up front when the datagram
	// is short of the Ethernet minimum payload.
	buf := make([]byte, ethHeaderLen+max(total, ethernet.MinPayloadSize))
	efrm, err := ethernet.NewFrame(buf)
	if err != nil {
		return corelink.ErrResourceExhaust
	}
	*efrm.DestinationHardwareAddr() = dstHW
	*efrm.SourceHardwareAddr() = e.hwAddr
	efrm.SetEtherType(ethernet.TypeIPv4)
	mfrm, err := ipv4.NewMutableFrame(efrm.Payload())
	if err != nil {
		return corelink.ErrResourceExhaust
	}
	mfrm.ClearHeader()
	*mfrm.SourceAddr() = e.ipv4Addr
	*mfrm.DestinationAddr() = dstIP
	mfrm.SetProtocol(proto)
	e.ipID = internal.Prand16(e.ipID + 1)
	mfrm.SetID(e.ipID)
	copy(mfrm.Payload(len(payload)), payload)
	sealed, err := mfrm.Seal(len(payload))
	if err != nil {
		return err
	}
	e.queue.PushTransmit(efrm.Pad(len(sealed.RawData())).RawData())
	return nil
}

// receiveIPv4 trims the Ethernet frame's minimum-payload padding off
// before handing the datagram to the IPv4 layer: a real IP stack
// finds the true datagram boundary from the header's own Total Length
// field rather than trusting the carrier's buffer length, the same
// way the link layer pads short frames up to 46 octets on the way out
// (ethernet.Frame.Pad) without that padding ever becoming part of the
// IPv4 datagram it carries.
func (e *Engine) receiveIPv4(payload []byte) error {
	if len(payload) >= 4 {
		totalLen := int(binary.BigEndian.Uint16(payload[2:4]))
		if totalLen > len(payload) {
			return corelink.ErrMalformed // declared length exceeds what arrived: truncated on the wire.
		}
		if totalLen >= 20 {
			payload = payload[:totalLen]
		}
	}
	ifrm, err := ipv4.NewFrame(payload)
	if err != nil {
		return corelink.ErrMalformed
	}
	var v corelink.Validator
	ifrm.Validate(&v)
	if v.HasError() {
		return kindOf(&v)
	}
	e.queue.Push(corelink.Event{Kind: corelink.EventIPv4Datagram, Frame: ifrm.RawData()})
	return nil
}

// kindOf reduces an accumulated Validator error to the single
// ErrorKind the engine's callers expect. The Validator keeps only the
// first error reported, so the result is the kind of the first check
// the frame failed, in the order the codec runs its checks.
func kindOf(v *corelink.Validator) error {
	err := v.Err()
	if errors.Is(err, corelink.ErrMalformed) {
		return corelink.ErrMalformed
	}
	if errors.Is(err, corelink.ErrUnsupported) {
		return corelink.ErrUnsupported
	}
	return corelink.ErrMalformed
}

// Poll advances the engine's internal timers (if the event queue was
// empty on entry) and returns the next pending Event, if any. A
// Transmit event's frame is extended with a trailing Ethernet FCS
// first if the engine was configured with AppendFCS.
func (e *Engine) Poll(now time.Time) (corelink.Event, bool) {
	ev, ok := e.queue.Pop()
	if !ok {
		e.resolver.Advance(now)
		ev, ok = e.queue.Pop()
		if !ok {
			return corelink.Event{}, false
		}
	}
	if ev.Kind == corelink.EventTransmit && e.appendFCS {
		ev.Frame = appendFCS(ev.Frame)
	}
	return ev, true
}

func appendFCS(frame []byte) []byte {
	crc := ethernet.CRC32(frame)
	buf := make([]byte, len(frame)+4)
	copy(buf, frame)
	binary.LittleEndian.PutUint32(buf[len(frame):], crc)
	return buf
}
