package projects

// assignmentDiff is the pure set difference between the links a project
// currently has open and the set the caller wants. Order is preserved
// from the desired slice for adds and from the current slice for removes.
type assignmentDiff struct {
	toAdd    []int
	toRemove []int
	kept     []int
}

func diffAssignments(current []int, desired []int) assignmentDiff {
	currentSet := make(map[int]bool, len(current))
	for _, id := range current {
		currentSet[id] = true
	}
	desiredSet := make(map[int]bool, len(desired))
	for _, id := range desired {
		desiredSet[id] = true
	}

	var d assignmentDiff
	for _, id := range desired {
		if !desiredSet[id] {
			continue
		}
		// Consume so a duplicate in the request adds only once.
		desiredSet[id] = false
		if currentSet[id] {
			d.kept = append(d.kept, id)
		} else {
			d.toAdd = append(d.toAdd, id)
		}
	}
	seen := make(map[int]bool, len(current))
	for _, id := range current {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !contains(desired, id) {
			d.toRemove = append(d.toRemove, id)
		}
	}
	return d
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
