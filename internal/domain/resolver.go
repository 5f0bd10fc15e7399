package domain

// ResolveRoots computes the conversation root for every record in the batch
// by following ReplyTo chains upward. The walk is iterative with a memo
// shared across the batch, so resolving a long chain once makes every node
// on it O(1) afterwards.
//
// A node is its own root when it has no parent reference or when its parent
// is not present in the batch (a dangling reply is treated as a local root
// rather than an error). Cycles terminate at the node where the cycle is
// first detected; every node visited on the way resolves to that same root.
func ResolveRoots(records []PostRecord) map[string]string {
	// First occurrence of a URI wins, matching the store's insert-if-absent
	// dedup, so a duplicate's ReplyTo cannot steer the kept record's root.
	parents := make(map[string]string, len(records))
	for i := range records {
		if _, ok := parents[records[i].URI]; !ok {
			parents[records[i].URI] = records[i].ReplyTo
		}
	}

	memo := make(map[string]string, len(records))
	roots := make(map[string]string, len(records))
	for i := range records {
		roots[records[i].URI] = rootFor(records[i].URI, parents, memo)
	}
	return roots
}

func rootFor(uri string, parents, memo map[string]string) string {
	if root, ok := memo[uri]; ok {
		return root
	}

	seen := make(map[string]struct{})
	var walked []string
	var root string

	cur := uri
	for {
		if r, ok := memo[cur]; ok {
			root = r
			break
		}
		if _, ok := seen[cur]; ok {
			// cycle: cur closes the loop, so it becomes the root
			root = cur
			break
		}
		seen[cur] = struct{}{}
		walked = append(walked, cur)

		parent := parents[cur]
		if parent == "" {
			root = cur
			break
		}
		if _, inBatch := parents[parent]; !inBatch {
			// dangling parent, cur is a local root
			root = cur
			break
		}
		cur = parent
	}

	for _, u := range walked {
		memo[u] = root
	}
	return root
}
