package redis

// An entry is one stored value. UpdatedAt is the write time in Unix
// nanoseconds and scores the key in the namespace index.
type entry struct {
	Value     string `redis:"value"`
	UpdatedAt int64  `redis:"updated_at"`
}
