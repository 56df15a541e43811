package ipv4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/soypat/corelink"
)

// NewFrame returns a Frame with data set to buf.
// An error is returned if the buffer size is smaller than 20.
// Users should still call [Frame.Validate] before working
// with payload/options of frames to avoid panics.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{buf: nil}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an IPv4 packet and provides a
// read-only, validated view over it. See [RFC791].
//
// [RFC791]: https://tools.ietf.org/html/rfc791
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (ifrm Frame) RawData() []byte { return ifrm.buf }

// HeaderLength returns the length of the IPv4 header as calculated using IHL.
func (ifrm Frame) HeaderLength() int { return int(ifrm.ihl()) * 4 }

func (ifrm Frame) ihl() uint8     { return ifrm.buf[0] & 0xf }
func (ifrm Frame) version() uint8 { return ifrm.buf[0] >> 4 }

// VersionAndIHL returns the version and IHL fields in the IPv4 header.
func (ifrm Frame) VersionAndIHL() (version, IHL uint8) {
	v := ifrm.buf[0]
	return v >> 4, v & 0xf
}

// ToS (Type of Service) contains the DSCP/ECN union data.
func (ifrm Frame) ToS() ToS { return ToS(ifrm.buf[1]) }

// TotalLength defines the entire packet size in bytes, including header and data.
func (ifrm Frame) TotalLength() uint16 { return binary.BigEndian.Uint16(ifrm.buf[2:4]) }

// ID is an identification field used to uniquely group fragments of a single datagram.
func (ifrm Frame) ID() uint16 { return binary.BigEndian.Uint16(ifrm.buf[4:6]) }

// Flags returns the [Flags] of the IP packet.
func (ifrm Frame) Flags() Flags { return Flags(binary.BigEndian.Uint16(ifrm.buf[6:8])) }

// TTL is an eight-bit time-to-live field.
func (ifrm Frame) TTL() uint8 { return ifrm.buf[8] }

// Protocol field defines the protocol used in the data portion of the IP datagram.
func (ifrm Frame) Protocol() corelink.IPProto { return corelink.IPProto(ifrm.buf[9]) }

// CRC returns the checksum field of the IPv4 header.
func (ifrm Frame) CRC() uint16 { return binary.BigEndian.Uint16(ifrm.buf[10:12]) }

// CalculateHeaderCRC computes the one's-complement checksum over the
// header with the CRC field treated as zero, per RFC 791 §3.1.
func (ifrm Frame) CalculateHeaderCRC() uint16 {
	var crc corelink.CRC791
	crc.WriteEven(ifrm.buf[0:10])
	crc.WriteEven(ifrm.buf[12:20])
	return crc.Sum16()
}

// CRCWriteTCPPseudo writes the IPv4 pseudo-header used by TCP's checksum into crc.
func (ifrm Frame) CRCWriteTCPPseudo(crc *corelink.CRC791) {
	crc.WriteEven(ifrm.SourceAddr()[:])
	crc.WriteEven(ifrm.DestinationAddr()[:])
	crc.AddUint16(ifrm.TotalLength() - 4*uint16(ifrm.ihl()))
	crc.AddUint16(uint16(ifrm.Protocol()))
}

// CRCWriteUDPPseudo writes the IPv4 pseudo-header used by UDP's checksum into crc.
func (ifrm Frame) CRCWriteUDPPseudo(crc *corelink.CRC791) {
	crc.WriteEven(ifrm.SourceAddr()[:])
	crc.WriteEven(ifrm.DestinationAddr()[:])
	crc.AddUint16(uint16(ifrm.Protocol()))
}

// SourceAddr returns a pointer to the source IPv4 address in the IP header.
func (ifrm Frame) SourceAddr() *[4]byte { return (*[4]byte)(ifrm.buf[12:16]) }

// DestinationAddr returns a pointer to the destination IPv4 address in the IP header.
func (ifrm Frame) DestinationAddr() *[4]byte { return (*[4]byte)(ifrm.buf[16:20]) }

// Payload returns the contents of the IPv4 packet, which may be zero sized.
// Call [Frame.Validate] beforehand to avoid a panic.
func (ifrm Frame) Payload() []byte {
	off := ifrm.HeaderLength()
	l := ifrm.TotalLength()
	return ifrm.buf[off:l]
}

// Options returns the options portion of the IPv4 header, if any.
func (ifrm Frame) Options() []byte {
	off := ifrm.HeaderLength()
	return ifrm.buf[sizeHeader:off]
}

//
// Validation API.
//

var errShort = errors.New("ipv4: short buffer")

// Validate runs the full set of wire-codec invariants over the frame,
// reporting every violation found to v. The invariant order mirrors
// the reference decoder: length and structural checks first, followed
// by the fields that determine whether the packet is even
// interpretable (IHL, fragmentation, checksum, protocol).
//
// IHL values other than 5 (no options) are rejected as Unsupported
// rather than Malformed: the header is well-formed, this decoder just
// does not implement IPv4 options.
func (ifrm Frame) Validate(v *corelink.Validator) {
	if len(ifrm.buf) <= sizeHeader {
		v.AddError(corelink.ErrMalformed)
		return
	}
	if ifrm.version() != 4 {
		v.AddError(corelink.ErrMalformed)
	}
	payloadLen := len(ifrm.buf) - sizeHeader
	if int(ifrm.TotalLength()) != payloadLen+sizeHeader {
		v.AddError(corelink.ErrMalformed)
	}
	ihl := ifrm.ihl()
	if ihl != 5 {
		v.AddError(corelink.ErrUnsupported)
	}
	if ifrm.Flags().FragmentOffset() != 0 {
		v.AddError(corelink.ErrUnsupported)
	}
	crc := ifrm.CRC()
	if crc == 0xFFFF {
		v.AddError(corelink.ErrMalformed)
	} else if crc != 0 && ifrm.CalculateHeaderCRC() != crc {
		v.AddError(corelink.ErrMalformed)
	}
	if !ifrm.Protocol().Known() {
		v.AddError(corelink.ErrUnsupported)
	}
}

func (ifrm Frame) String() string {
	dst := netip.AddrFrom4(*ifrm.DestinationAddr())
	src := netip.AddrFrom4(*ifrm.SourceAddr())
	hl := ifrm.HeaderLength()
	tl := int(ifrm.TotalLength())
	return fmt.Sprintf("IP %s SRC=%s DST=%s LEN=%d OPT=%d TTL=%d ID=%d ToS=0x%x",
		ifrm.Protocol().String(), src.String(), dst.String(), tl, tl-hl, ifrm.TTL(), ifrm.ID(), ifrm.ToS())
}

//
// Mutable construction API.
//

// NewMutableFrame returns a MutableFrame with data set to buf, for
// building an outgoing packet. An error is returned if buf is smaller
// than the minimum header size.
func NewMutableFrame(buf []byte) (MutableFrame, error) {
	if len(buf) < sizeHeader {
		return MutableFrame{}, errShort
	}
	return MutableFrame{buf: buf}, nil
}

// MutableFrame is the write-side counterpart to Frame: a packet under
// construction whose fields are not yet guaranteed consistent. Seal
// fixes up the derived fields (version, IHL, total length, checksum)
// and hands back a validated [Frame] over the same bytes.
type MutableFrame struct {
	buf []byte
}

// SetToS sets ToS field. See [Frame.ToS].
func (ifrm MutableFrame) SetToS(tos ToS) { ifrm.buf[1] = byte(tos) }

// SetID sets the ID field. See [Frame.ID].
func (ifrm MutableFrame) SetID(id uint16) { binary.BigEndian.PutUint16(ifrm.buf[4:6], id) }

// SetFlags sets the IPv4 flags field. See [Flags].
func (ifrm MutableFrame) SetFlags(flags Flags) {
	binary.BigEndian.PutUint16(ifrm.buf[6:8], uint16(flags))
}

// SetTTL sets the TTL field. See [Frame.TTL].
func (ifrm MutableFrame) SetTTL(ttl uint8) { ifrm.buf[8] = ttl }

// SetProtocol sets the protocol field. See [Frame.Protocol].
func (ifrm MutableFrame) SetProtocol(proto corelink.IPProto) { ifrm.buf[9] = uint8(proto) }

// SourceAddr returns a pointer to the mutable source IPv4 address.
func (ifrm MutableFrame) SourceAddr() *[4]byte { return (*[4]byte)(ifrm.buf[12:16]) }

// DestinationAddr returns a pointer to the mutable destination IPv4 address.
func (ifrm MutableFrame) DestinationAddr() *[4]byte { return (*[4]byte)(ifrm.buf[16:20]) }

// ClearHeader zeros out the fixed (non-variable) header contents.
func (ifrm MutableFrame) ClearHeader() {
	for i := range ifrm.buf[:sizeHeader] {
		ifrm.buf[i] = 0
	}
}

// Payload returns the payloadLen bytes following the header, for the
// caller to fill in before calling Seal.
func (ifrm MutableFrame) Payload(payloadLen int) []byte {
	return ifrm.buf[sizeHeader : sizeHeader+payloadLen]
}

const ihlNoOptions = 5

// Seal finalizes a packet of payloadLen bytes (already written via
// Payload) into a well-formed IPv4 header: version=4, IHL=5 (no
// options), TTL=64, total length set, and checksum computed over the
// sealed header. It fails with ErrMalformed if the resulting total
// length does not fit in 16 bits, matching the reference encoder's
// size-fits-the-wire-format check rather than a general resource limit.
func (ifrm MutableFrame) Seal(payloadLen int) (Frame, error) {
	total := sizeHeader + payloadLen
	if total > 0xFFFF {
		return Frame{}, corelink.ErrMalformed
	}
	if len(ifrm.buf) < total {
		return Frame{}, errShort
	}
	ifrm.buf[0] = 4<<4 | ihlNoOptions
	ifrm.buf[8] = 64 // TTL
	binary.BigEndian.PutUint16(ifrm.buf[2:4], uint16(total))
	binary.BigEndian.PutUint16(ifrm.buf[10:12], 0)
	sealed := Frame{buf: ifrm.buf[:total]}
	binary.BigEndian.PutUint16(ifrm.buf[10:12], sealed.CalculateHeaderCRC())
	return sealed, nil
}
