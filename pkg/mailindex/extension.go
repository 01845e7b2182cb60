package mailindex

// ExtNone is the sentinel "no extension selected" index value.
const ExtNone = ^uint32(0)

// Extension describes one registered per-map extension: a named slice of
// every record plus an optional region of the header copy buffer. Offsets
// are assigned at registration time and never move for the lifetime of the
// map; a reset clears data but keeps the layout.
type Extension struct {
	Name    string
	ResetID uint32

	HdrOffset uint32 // into HdrCopyBuf, 0 if HdrSize == 0
	HdrSize   uint32

	RecordOffset uint32 // into each record
	RecordSize   uint32
	RecordAlign  uint32
}

// FindExtension returns the index of the extension registered under name.
func (m *Map) FindExtension(name string) (uint32, bool) {
	for i := range m.Extensions {
		if m.Extensions[i].Name == name {
			return uint32(i), true
		}
	}
	return ExtNone, false
}

// RegisterExtension adds a new extension to the map, growing the header
// copy buffer by hdrSize and widening every record by recordSize (aligned).
// The map must be private and own its record map; callers go through
// GetAtomicMap first.
func (m *Map) RegisterExtension(name string, resetID, hdrSize, recordSize, recordAlign uint32) uint32 {
	if recordAlign == 0 {
		recordAlign = 1
	}

	ext := Extension{
		Name:        name,
		ResetID:     resetID,
		HdrSize:     hdrSize,
		RecordSize:  recordSize,
		RecordAlign: recordAlign,
	}

	if hdrSize > 0 {
		ext.HdrOffset = m.Header.HeaderSize
		m.Header.HeaderSize += hdrSize
		if uint32(len(m.HdrCopyBuf)) < m.Header.HeaderSize {
			grown := make([]byte, m.Header.HeaderSize)
			copy(grown, m.HdrCopyBuf)
			m.HdrCopyBuf = grown
		}
	}

	if recordSize > 0 {
		offset := m.Header.RecordSize
		if rem := offset % recordAlign; rem != 0 {
			offset += recordAlign - rem
		}
		ext.RecordOffset = offset
		m.Header.RecordSize = offset + recordSize
		m.Rec.Grow(m.Header.RecordSize)
	}

	m.Extensions = append(m.Extensions, ext)
	return uint32(len(m.Extensions) - 1)
}

// ExtHdr returns the extension's slice of the header copy buffer.
func (m *Map) ExtHdr(idx uint32) []byte {
	ext := &m.Extensions[idx]
	return m.HdrCopyBuf[ext.HdrOffset : ext.HdrOffset+ext.HdrSize]
}

// ExtRecord returns the extension's slice of the record at seq. The slice
// aliases the record map buffer; callers must not retain it across a
// mutation.
func (m *Map) ExtRecord(idx, seq uint32) []byte {
	ext := &m.Extensions[idx]
	rec := m.Rec.RecordAt(seq)
	return rec[ext.RecordOffset : ext.RecordOffset+ext.RecordSize]
}

// ResetExtension zeroes the extension's header region and its slice of
// every record, then stamps the new reset id. With preserveData set only
// the reset id changes.
func (m *Map) ResetExtension(idx, newResetID uint32, preserveData bool) {
	ext := &m.Extensions[idx]
	ext.ResetID = newResetID
	if preserveData {
		return
	}
	if ext.HdrSize > 0 {
		clear(m.HdrCopyBuf[ext.HdrOffset : ext.HdrOffset+ext.HdrSize])
	}
	if ext.RecordSize > 0 {
		for seq := uint32(1); seq <= m.Rec.RecordsCount; seq++ {
			clear(m.ExtRecord(idx, seq))
		}
	}
}
