// Package broadcast provides type-safe one-to-many message delivery.
//
// Two implementations share the Broadcaster interface:
//
//   - MemoryBroadcaster delivers within a single process.
//   - RedisBroadcaster delivers across processes over a Redis Pub/Sub channel.
//
// Broadcast never blocks: a subscriber that cannot keep up misses messages.
// Use them for wake-up hints whose receivers can recover state from a durable
// source.
//
// Basic usage:
//
//	b := broadcast.NewMemoryBroadcaster[queue.EventNotice](16)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	defer sub.Close()
//
//	_ = b.Broadcast(ctx, broadcast.Message[queue.EventNotice]{Data: notice})
//
//	for msg := range sub.Receive(ctx) {
//		fmt.Println(msg.Data.ID)
//	}
package broadcast
