package syncmap

import "github.com/maildrop/indexsync/pkg/mailindex"

// seqRangeSet is a deduplicating set of 1-based sequence ranges, kept
// sorted and merged. The expunge engine feeds it unsorted, possibly
// overlapping ranges and reads back the disjoint ascending form the record
// map's compaction requires.
type seqRangeSet struct {
	ranges []mailindex.SeqRange
}

// add inserts [start, end], merging with any ranges it touches or abuts.
func (s *seqRangeSet) add(start, end uint32) {
	if start == 0 || end < start {
		return
	}

	// Find the insertion point: first range that ends at or after start-1
	// (abutting counts as mergeable).
	i := 0
	for i < len(s.ranges) && s.ranges[i].End+1 < start {
		i++
	}

	if i == len(s.ranges) || s.ranges[i].Start > end+1 {
		s.ranges = append(s.ranges, mailindex.SeqRange{})
		copy(s.ranges[i+1:], s.ranges[i:])
		s.ranges[i] = mailindex.SeqRange{Start: start, End: end}
		return
	}

	// Merge into s.ranges[i], then swallow any following ranges the merged
	// span now covers.
	if start < s.ranges[i].Start {
		s.ranges[i].Start = start
	}
	if end > s.ranges[i].End {
		s.ranges[i].End = end
	}
	j := i + 1
	for j < len(s.ranges) && s.ranges[j].Start <= s.ranges[i].End+1 {
		if s.ranges[j].End > s.ranges[i].End {
			s.ranges[i].End = s.ranges[j].End
		}
		j++
	}
	s.ranges = append(s.ranges[:i+1], s.ranges[j:]...)
}

func (s *seqRangeSet) empty() bool {
	return len(s.ranges) == 0
}

// count returns the total number of sequences covered.
func (s *seqRangeSet) count() uint32 {
	var n uint32
	for _, r := range s.ranges {
		n += r.End - r.Start + 1
	}
	return n
}
