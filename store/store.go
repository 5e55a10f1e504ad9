// Package store 提供 core.KeyValueStore 的实现：进程内的 MemoryStore 与 RedisStore。
//
//	var s core.KeyValueStore = store.NewMemoryStore()
//	r, err := store.NewRedisStore(store.RedisConfig{Addr: "localhost:6379"})
package store
