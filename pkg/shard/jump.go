package shard

// jumpConsistentHash is Lamping & Veach's jump consistent hash. It
// deterministically maps key to a bucket in [0, numBuckets) such that a
// key's bucket never changes for a fixed numBuckets — a key's shard
// never changes for the lifetime of a process instance.
func jumpConsistentHash(key uint64, numBuckets int) int {
	var b, j int64 = -1, 0
	for j < int64(numBuckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}
	return int(b)
}
