package smem

// BankFor maps a byte address to its shared-memory bank index, word-
// interleaved (consecutive words land in consecutive banks).
func BankFor(addr uint64, banks int, wordBytes uint32) int {
	if banks <= 0 {
		return 0
	}
	word := addr / uint64(wordBytes)
	return int(word % uint64(banks))
}

// SubbankFor further divides each bank into sub-banks, cycling one level up
// from BankFor so two requests that collide on a bank can still land on
// different sub-banks.
func SubbankFor(addr uint64, banks, subbanks int, wordBytes uint32) int {
	if subbanks <= 0 {
		return 0
	}
	word := addr / uint64(wordBytes)
	if banks <= 0 {
		banks = 1
	}
	return int((word / uint64(banks)) % uint64(subbanks))
}

// SplitRequest groups a warp's lane addresses by (bank, sub-bank)
// (original_source's split_smem_request): every incoming lane address
// counts toward its group's ConflictDeg, including repeats of the same
// address — a group of k lanes on one bank replays k times regardless of
// whether some of those lanes target the same word.
func SplitRequest(id uint64, coreID, warpID int, addrs []uint64, isStore bool, banks, subbanks int, wordBytes uint32) []*Request {
	type key struct {
		bank, subbank int
	}
	order := make([]key, 0)
	group := make(map[key][]uint64)

	for _, a := range addrs {
		k := key{BankFor(a, banks, wordBytes), SubbankFor(a, banks, subbanks, wordBytes)}
		if _, ok := group[k]; !ok {
			order = append(order, k)
		}
		group[k] = append(group[k], a)
	}

	reqs := make([]*Request, 0, len(order))
	for _, k := range order {
		lanes := group[k]
		reqs = append(reqs, &Request{
			ID:          id,
			CoreID:      coreID,
			WarpID:      warpID,
			Bank:        k.bank,
			Subbank:     k.subbank,
			Addrs:       lanes,
			ConflictDeg: len(lanes),
			IsStore:     isStore,
		})
	}
	return reqs
}

// ComputeConflict summarizes one split request's replay cost.
func ComputeConflict(r *Request) Conflict {
	return Conflict{Bank: r.Bank, Degree: r.ConflictDeg, BroadcastOK: r.ConflictDeg <= 1}
}
