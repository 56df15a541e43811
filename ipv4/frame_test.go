package ipv4

import (
	"errors"
	"testing"

	"github.com/soypat/corelink"
)

func TestSealRoundTrip(t *testing.T) {
	var buf [20 + 100]byte
	mfrm, err := NewMutableFrame(buf[:])
	if err != nil {
		t.Fatal(err)
	}
	mfrm.ClearHeader()
	*mfrm.SourceAddr() = [4]byte{10, 0, 0, 1}
	*mfrm.DestinationAddr() = [4]byte{10, 0, 0, 2}
	mfrm.SetProtocol(corelink.IPProtoUDP)
	payload := mfrm.Payload(100)
	for i := range payload {
		payload[i] = byte(i)
	}
	ifrm, err := mfrm.Seal(100)
	if err != nil {
		t.Fatal(err)
	}
	if got := ifrm.TotalLength(); got != 120 {
		t.Errorf("want total length 120, got %d", got)
	}
	if _, ihl := ifrm.VersionAndIHL(); ihl != 5 {
		t.Errorf("want IHL 5, got %d", ihl)
	}
	var v corelink.Validator
	ifrm.Validate(&v)
	if v.HasError() {
		t.Fatalf("sealed frame failed validation: %v", v.Err())
	}
	if got := ifrm.CalculateHeaderCRC(); got != ifrm.CRC() {
		t.Errorf("checksum does not self-verify: stored=%#x computed=%#x", ifrm.CRC(), got)
	}
}

func TestSealTooLarge(t *testing.T) {
	var buf [20]byte
	mfrm, _ := NewMutableFrame(buf[:])
	_, err := mfrm.Seal(0x10000)
	if err != corelink.ErrMalformed {
		t.Fatalf("want ErrMalformed for oversize payload, got %v", err)
	}
}

func TestValidateFragmentOffsetUnsupported(t *testing.T) {
	var buf [20 + 8]byte
	mfrm, _ := NewMutableFrame(buf[:])
	mfrm.ClearHeader()
	mfrm.SetProtocol(corelink.IPProtoUDP)
	ifrm, err := mfrm.Seal(8)
	if err != nil {
		t.Fatal(err)
	}
	mfrm.SetFlags(1) // non-zero fragment offset bit.
	var v corelink.Validator
	ifrm.Validate(&v)
	if !errors.Is(v.Err(), corelink.ErrUnsupported) {
		t.Fatalf("want ErrUnsupported for non-zero fragment offset, got %v", v.Err())
	}
}

func TestValidateBadChecksum(t *testing.T) {
	var buf [20 + 8]byte
	mfrm, _ := NewMutableFrame(buf[:])
	mfrm.ClearHeader()
	mfrm.SetProtocol(corelink.IPProtoUDP)
	ifrm, err := mfrm.Seal(8)
	if err != nil {
		t.Fatal(err)
	}
	buf[10] ^= 0xff // corrupt checksum so self-check must fail.
	var v corelink.Validator
	ifrm.Validate(&v)
	if !v.HasError() {
		t.Fatal("want error for corrupted checksum")
	}
}

func TestValidateAllOnesChecksumRejected(t *testing.T) {
	var buf [20 + 8]byte
	mfrm, _ := NewMutableFrame(buf[:])
	mfrm.ClearHeader()
	mfrm.SetProtocol(corelink.IPProtoUDP)
	ifrm, err := mfrm.Seal(8)
	if err != nil {
		t.Fatal(err)
	}
	buf[10], buf[11] = 0xff, 0xff
	var v corelink.Validator
	ifrm.Validate(&v)
	if !errors.Is(v.Err(), corelink.ErrMalformed) {
		t.Fatalf("want ErrMalformed for all-ones checksum, got %v", v.Err())
	}
}

func TestValidateIHLNotFiveUnsupported(t *testing.T) {
	var buf [24 + 8]byte
	mfrm, _ := NewMutableFrame(buf[:])
	mfrm.ClearHeader()
	mfrm.SetProtocol(corelink.IPProtoUDP)
	ifrm, err := mfrm.Seal(8 + 4)
	if err != nil {
		t.Fatal(err)
	}
	buf[0] = 4<<4 | 6 // IHL=6, still version 4.
	var v corelink.Validator
	ifrm.Validate(&v)
	if !errors.Is(v.Err(), corelink.ErrUnsupported) {
		t.Fatalf("want ErrUnsupported for IHL != 5, got %v", v.Err())
	}
}

func TestValidateUnknownProtocolUnsupported(t *testing.T) {
	var buf [20 + 4]byte
	mfrm, _ := NewMutableFrame(buf[:])
	mfrm.ClearHeader()
	ifrm, err := mfrm.Seal(4)
	if err != nil {
		t.Fatal(err)
	}
	buf[9] = 0xfe // unassigned protocol number, not in the closed set.
	buf[10], buf[11] = 0, 0
	var v corelink.Validator
	ifrm.Validate(&v)
	if !errors.Is(v.Err(), corelink.ErrUnsupported) {
		t.Fatalf("want ErrUnsupported for unknown protocol, got %v", v.Err())
	}
}
