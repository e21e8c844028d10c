package dhcpwire

import (
	"encoding/binary"

	"github.com/AdguardTeam/golibs/errors"
)

// Serialize encodes h into the wire format: the 240-byte fixed prologue
// followed by the TLV-encoded options present in h.Options, in canonical
// order, terminated by the END tag.
//
// Serialize does not validate h; construct a valid Header (correct HLen,
// zeroed padding past it) before calling it. Deserialize is the inverse and
// does validate its input.
func Serialize(h *Header) []byte {
	buf := make([]byte, HeaderSize, HeaderSize+32)

	buf[0] = byte(h.Bootp)
	buf[1] = h.HType
	buf[2] = h.HLen
	buf[3] = h.Hops

	binary.LittleEndian.PutUint32(buf[4:8], h.Xid)
	binary.BigEndian.PutUint16(buf[8:10], h.Secs)
	binary.BigEndian.PutUint16(buf[10:12], h.Flags)

	copy(buf[12:16], h.CiAddr[:])
	copy(buf[16:20], h.YiAddr[:])
	copy(buf[20:24], h.SiAddr[:])
	copy(buf[24:28], h.GiAddr[:])

	// chaddr always occupies the full 16 bytes regardless of hlen; bytes
	// past HLen are left zero (Open Question 2).
	copy(buf[28:44], h.ChAddr[:])

	copy(buf[44:108], h.SName[:])
	copy(buf[108:236], h.File[:])
	copy(buf[236:240], magicCookie[:])

	o := &h.Options
	if o.HasMsgType {
		buf = append(buf, tagMsgType, 1, o.MsgType.wire())
	}
	if o.HasRequestedAddr {
		buf = append(buf, tagAddReq, 4)
		buf = append(buf, o.RequestedAddr[:]...)
	}
	if o.HasServerID {
		buf = append(buf, tagServID, 4)
		buf = append(buf, o.ServerID[:]...)
	}
	if o.HasSubnetMask {
		buf = append(buf, tagMask, 4)
		buf = append(buf, o.SubnetMask[:]...)
	}
	if o.HasLeaseTime {
		buf = appendU32Option(buf, tagLease, o.LeaseTime)
	}
	if o.HasRenewTime {
		buf = appendU32Option(buf, tagRenew, o.RenewTime)
	}
	if o.HasRebindTime {
		buf = appendU32Option(buf, tagRebind, o.RebindTime)
	}
	buf = append(buf, tagEnd)

	return buf
}

func appendU32Option(buf []byte, tag byte, v uint32) []byte {
	buf = append(buf, tag, 4, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(buf[len(buf)-4:], v)
	return buf
}

// Deserialize decodes a wire message into a Header, validating the fixed
// prologue length, the magic cookie, and every option tag/length pair.
// Unknown tags, or known tags whose declared length doesn't match their
// fixed width, fail with ErrBadOption. A buffer shorter than HeaderSize
// fails with ErrTruncated; a mismatched magic cookie fails with
// ErrBadCookie. All three wrap ErrMalformed.
func Deserialize(b []byte) (h *Header, err error) {
	defer func() { err = errors.Annotate(err, "%w: %w", ErrMalformed) }()

	if len(b) < HeaderSize {
		return nil, errors.Annotate(ErrTruncated, "dhcpwire: got %d bytes, want at least %d: %w", len(b), HeaderSize)
	}

	h = &Header{}
	h.Bootp = BootpOp(b[0])
	h.HType = b[1]
	h.HLen = b[2]
	h.Hops = b[3]

	if h.HLen != 6 && h.HLen != 8 {
		return nil, errors.Annotate(ErrBadHLen, "dhcpwire: hlen %d: %w", h.HLen)
	}

	h.Xid = binary.LittleEndian.Uint32(b[4:8])
	h.Secs = binary.BigEndian.Uint16(b[8:10])
	h.Flags = binary.BigEndian.Uint16(b[10:12])

	copy(h.CiAddr[:], b[12:16])
	copy(h.YiAddr[:], b[16:20])
	copy(h.SiAddr[:], b[20:24])
	copy(h.GiAddr[:], b[24:28])
	copy(h.ChAddr[:], b[28:44])
	copy(h.SName[:], b[44:108])
	copy(h.File[:], b[108:236])

	var cookie [4]byte
	copy(cookie[:], b[236:240])
	if cookie != magicCookie {
		return nil, errors.Annotate(ErrBadCookie, "dhcpwire: got %x, want %x: %w", cookie, magicCookie)
	}

	if err := decodeOptions(b[HeaderSize:], &h.Options); err != nil {
		return nil, err
	}

	return h, nil
}

func decodeOptions(b []byte, o *Options) error {
	for len(b) > 0 {
		tag := b[0]
		b = b[1:]
		if tag == tagEnd {
			return nil
		}
		if len(b) < 1 {
			return errors.Annotate(ErrBadOption, "dhcpwire: truncated length byte for tag %d: %w", tag)
		}
		n := int(b[0])
		b = b[1:]
		if len(b) < n {
			return errors.Annotate(ErrBadOption, "dhcpwire: tag %d declares %d bytes, only %d remain: %w", tag, n, len(b))
		}
		val := b[:n]
		b = b[n:]

		switch tag {
		case tagMsgType:
			if n != 1 {
				return errors.Annotate(ErrBadOption, "dhcpwire: msgtype option has length %d, want 1: %w", n)
			}
			mt, ok := msgTypeFromWire(val[0])
			if !ok {
				return errors.Annotate(ErrBadOption, "dhcpwire: msgtype wire value %d is reserved: %w", val[0])
			}
			o.HasMsgType = true
			o.MsgType = mt
		case tagAddReq:
			if n != 4 {
				return errors.Annotate(ErrBadOption, "dhcpwire: requested-address option has length %d, want 4: %w", n)
			}
			o.HasRequestedAddr = true
			copy(o.RequestedAddr[:], val)
		case tagServID:
			if n != 4 {
				return errors.Annotate(ErrBadOption, "dhcpwire: server-id option has length %d, want 4: %w", n)
			}
			o.HasServerID = true
			copy(o.ServerID[:], val)
		case tagMask:
			if n != 4 {
				return errors.Annotate(ErrBadOption, "dhcpwire: subnet-mask option has length %d, want 4: %w", n)
			}
			o.HasSubnetMask = true
			copy(o.SubnetMask[:], val)
		case tagLease:
			if n != 4 {
				return errors.Annotate(ErrBadOption, "dhcpwire: lease-time option has length %d, want 4: %w", n)
			}
			o.HasLeaseTime = true
			o.LeaseTime = binary.BigEndian.Uint32(val)
		case tagRenew:
			if n != 4 {
				return errors.Annotate(ErrBadOption, "dhcpwire: renew-time option has length %d, want 4: %w", n)
			}
			o.HasRenewTime = true
			o.RenewTime = binary.BigEndian.Uint32(val)
		case tagRebind:
			if n != 4 {
				return errors.Annotate(ErrBadOption, "dhcpwire: rebind-time option has length %d, want 4: %w", n)
			}
			o.HasRebindTime = true
			o.RebindTime = binary.BigEndian.Uint32(val)
		default:
			return errors.Annotate(ErrBadOption, "dhcpwire: unknown tag %d: %w", tag)
		}
	}
	// Ran off the end of the buffer without an END tag. The reference
	// format always has one; treat its absence as malformed rather than
	// silently accepting a truncated option list.
	return errors.Annotate(ErrBadOption, "dhcpwire: missing END option: %w")
}
