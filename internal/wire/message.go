package wire

// Message is a full mDNS packet: header plus the four sections (spec §4.1).
type Message struct {
	ID            uint16
	Response      bool
	Authoritative bool
	Questions     []Question
	Answers       []Record
	Authority     []Record
	Additional    []Record
}

// Encode serializes m to wire format, applying name compression across the
// whole message (a single compressionTable spans all sections) and
// rejecting anything that would not fit in MaxDatagram bytes (spec §6).
func Encode(m Message) ([]byte, error) {
	h := Header{
		ID:            m.ID,
		Response:      m.Response,
		Authoritative: m.Authoritative,
		Questions:     uint16(len(m.Questions)),
		Answers:       uint16(len(m.Answers)),
		Authority:     uint16(len(m.Authority)),
		Additional:    uint16(len(m.Additional)),
	}

	buf := make([]byte, 0, 512)
	buf = EncodeHeader(buf, h)

	ct := newCompressionTable()
	var err error
	for _, q := range m.Questions {
		if buf, err = EncodeQuestion(buf, q, ct); err != nil {
			return nil, err
		}
	}
	for _, r := range m.Answers {
		if buf, err = EncodeRecord(buf, r, ct); err != nil {
			return nil, err
		}
	}
	for _, r := range m.Authority {
		if buf, err = EncodeRecord(buf, r, ct); err != nil {
			return nil, err
		}
	}
	for _, r := range m.Additional {
		if buf, err = EncodeRecord(buf, r, ct); err != nil {
			return nil, err
		}
	}

	if len(buf) > MaxDatagram {
		return nil, ErrPacketTooBig
	}
	return buf, nil
}

// Decode parses a wire-format packet into a Message. Truncated/malformed
// packets and label lengths >= 64 without pointer bits abort the parse
// (spec §4.1 "Failure modes"); a pointer loop aborts; names with more than
// 4 parts are retained but marked Invalid by the caller via wire.ParseName,
// not by this function.
func Decode(packet []byte) (Message, error) {
	h, err := DecodeHeader(packet)
	if err != nil {
		return Message{}, err
	}

	m := Message{ID: h.ID, Response: h.Response, Authoritative: h.Authoritative}
	offset := headerLen

	for i := 0; i < int(h.Questions); i++ {
		q, next, err := DecodeQuestion(packet, offset)
		if err != nil {
			return Message{}, err
		}
		m.Questions = append(m.Questions, q)
		offset = next
	}

	decodeRRs := func(n uint16) ([]Record, error) {
		recs := make([]Record, 0, n)
		for i := 0; i < int(n); i++ {
			r, next, err := DecodeRecord(packet, offset)
			if err != nil {
				return nil, err
			}
			recs = append(recs, r)
			offset = next
		}
		return recs, nil
	}

	if m.Answers, err = decodeRRs(h.Answers); err != nil {
		return Message{}, err
	}
	if m.Authority, err = decodeRRs(h.Authority); err != nil {
		return Message{}, err
	}
	if m.Additional, err = decodeRRs(h.Additional); err != nil {
		return Message{}, err
	}

	return m, nil
}
