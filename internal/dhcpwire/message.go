// Package dhcpwire implements the wire format of the BOOTP/DHCP messages
// exchanged by this module's client and server.
//
// The format is the fixed-size prologue plus tagged-option suffix described
// in the package's spec: it is not a full RFC 2131 codec, and two of its
// encoding rules are deliberately non-standard (see Header.Xid and
// Header.ChAddr below) in order to reproduce a specific reference
// implementation's on-the-wire behavior rather than interoperate with
// arbitrary DHCP stacks.
package dhcpwire

import "github.com/AdguardTeam/golibs/errors"

// BootpOp is the BOOTP op-code carried in the first header byte.
type BootpOp uint8

// BOOTP op-codes.
const (
	OpBootRequest BootpOp = 1
	OpBootReply   BootpOp = 2
)

// MsgType is the internal representation of the DHCP message type option
// (tag 53). The wire value is always MsgType+1; see Serialize/Deserialize.
// This offset-by-one reproduces the reference implementation's enum, where
// DHCPOFFER/DHCPREQ/DHCPACK/DHCPNACK are not contiguous with their wire
// values.
type MsgType uint8

// DHCP message types, in their internal (wire - 1) representation.
const (
	MsgDiscover MsgType = 0
	MsgOffer    MsgType = 1
	MsgRequest  MsgType = 2
	MsgAck      MsgType = 4
	MsgNack     MsgType = 5
)

func (m MsgType) wire() uint8 { return uint8(m) + 1 }

func msgTypeFromWire(w uint8) (MsgType, bool) {
	if w == 0 {
		return 0, false
	}
	return MsgType(w - 1), true
}

// String returns a short human-readable name, used only in log lines.
func (m MsgType) String() string {
	switch m {
	case MsgDiscover:
		return "DISCOVER"
	case MsgOffer:
		return "OFFER"
	case MsgRequest:
		return "REQUEST"
	case MsgAck:
		return "ACK"
	case MsgNack:
		return "NACK"
	default:
		return "UNKNOWN"
	}
}

// HeaderSize is the fixed size, in bytes, of the BOOTP prologue that
// precedes the variable-length option list.
const HeaderSize = 240

// magicCookie is the 4-byte value that must immediately follow the file
// field and precede the option list.
var magicCookie = [4]byte{99, 130, 83, 99}

// Error categories returned by Deserialize. Callers match them with
// errors.Is.
const (
	// ErrMalformed is the base sentinel for every rejection reason below;
	// errors.Is(err, ErrMalformed) is true for all of them.
	ErrMalformed errors.Error = "dhcpwire: malformed packet"
	// ErrTruncated reports a buffer shorter than the fixed prologue.
	ErrTruncated errors.Error = "dhcpwire: truncated packet"
	// ErrBadCookie reports a magic-cookie mismatch.
	ErrBadCookie errors.Error = "dhcpwire: bad magic cookie"
	// ErrBadOption reports an option whose tag is unknown or whose
	// declared length doesn't match the tag's fixed width.
	ErrBadOption errors.Error = "dhcpwire: bad option"
	// ErrBadHLen reports an hlen outside the {6, 8} the codec supports.
	ErrBadHLen errors.Error = "dhcpwire: unsupported hlen"
)

// Header is a decoded BOOTP/DHCP message: the fixed prologue fields plus
// the subset of options this module understands (see Options).
type Header struct {
	Bootp BootpOp
	HType uint8
	// HLen is the length, in bytes, of ChAddr: 6 or 8. Regardless of
	// HLen, the wire chaddr field always occupies the full 16 bytes,
	// zero-padded past HLen (spec Open Question 2).
	HLen uint8
	Hops uint8

	// Xid is written and read as a raw little-endian uint32, not network
	// (big-endian) order. This reproduces the reference implementation's
	// host-order write rather than RFC 2131's network-order requirement
	// (spec Open Question 1); it only matters for interop with this
	// module's own client/server pair, which agree on the same order.
	Xid uint32

	Secs  uint16
	Flags uint16

	CiAddr [4]byte
	YiAddr [4]byte
	SiAddr [4]byte
	GiAddr [4]byte

	// ChAddr holds HLen significant bytes; callers should not read past
	// HLen.
	ChAddr [16]byte

	SName [64]byte
	File  [128]byte

	Options Options
}

// Options is the tagged-option subset of the format this module parses and
// emits. Each field has a companion "Has*" bool; only options marked
// present are serialized, in the canonical order MSGTYPE, ADDREQ, SERVID,
// MASK, LEASE, RENEW, REBIND, END.
type Options struct {
	HasMsgType bool
	MsgType    MsgType

	HasRequestedAddr bool
	RequestedAddr    [4]byte

	HasServerID bool
	ServerID    [4]byte

	HasSubnetMask bool
	SubnetMask    [4]byte

	HasLeaseTime bool
	LeaseTime    uint32

	HasRenewTime bool
	RenewTime    uint32

	HasRebindTime bool
	RebindTime    uint32
}

// Option tags, matching the reference header's enum.
const (
	tagMask    = 1
	tagAddReq  = 50
	tagLease   = 51
	tagMsgType = 53
	tagServID  = 54
	tagRenew   = 58
	tagRebind  = 59
	tagEnd     = 255
)
