package registry

// FindAndOccupy is the atomic find-and-occupy primitive (spec.md §4.2): under
// the registry's exclusive lock, it scans entries, picks the first one
// encountered whose health is Available, flips it to Busy, and returns its
// id and endpoint URL. If no entry is Available (including an empty
// registry), it returns ok=false without touching any entry.
//
// Iteration order over entries is whatever Go's map iteration happens to
// produce, which is runtime-randomized — callers must not assume any
// ordering or fairness between concurrent callers. The only contract is
// mutual exclusion: no two calls ever occupy the same record.
func (r *Registry) FindAndOccupy() (id, endpointURL string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.Health.State != Available {
			continue
		}
		rec.Health = Health{State: Busy}
		rec.Generation++
		return rec.ID, rec.EndpointURL, true
	}
	return "", "", false
}
