package crawler

// MergeResults returns the union of existing and incoming keyed by ID. The
// existing order is preserved and unseen incoming entries are appended in the
// order given. The second return value holds only the entries that were added.
func MergeResults(existing, incoming []ResultEntry) ([]ResultEntry, []ResultEntry) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]ResultEntry, 0, len(existing)+len(incoming))
	for _, entry := range existing {
		if _, dup := seen[entry.ID]; dup {
			continue
		}
		seen[entry.ID] = struct{}{}
		merged = append(merged, entry)
	}
	var added []ResultEntry
	for _, entry := range incoming {
		if _, dup := seen[entry.ID]; dup {
			continue
		}
		seen[entry.ID] = struct{}{}
		merged = append(merged, entry)
		added = append(added, entry)
	}
	return merged, added
}
