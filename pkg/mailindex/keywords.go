package mailindex

// KeywordsExtName is the extension the keyword bitmap lives in.
const KeywordsExtName = "keywords"

// KeywordsExtSize is the per-record keyword bitmap width in bytes. One bit
// per keyword name; the map-level name list gives bit positions.
const KeywordsExtSize = 8

// MaxKeywords is the hard cap implied by the bitmap width.
const MaxKeywords = KeywordsExtSize * 8

// KeywordIdx returns the bit position of name in the map's keyword list.
func (m *Map) KeywordIdx(name string) (uint32, bool) {
	for i, kw := range m.Keywords {
		if kw == name {
			return uint32(i), true
		}
	}
	return 0, false
}

// AddKeyword registers a keyword name and returns its bit position. Returns
// ok=false when the bitmap is full; the caller treats that as corruption
// since the log writer should never have allowed the keyword in.
func (m *Map) AddKeyword(name string) (uint32, bool) {
	if idx, ok := m.KeywordIdx(name); ok {
		return idx, true
	}
	if len(m.Keywords) >= MaxKeywords {
		return 0, false
	}
	m.Keywords = append(m.Keywords, name)
	return uint32(len(m.Keywords) - 1), true
}
