// Package queue moves context graphs between processes over Redis.
//
// Producers push whole graph documents or individual memory notes onto Redis
// lists; consumers pop them in FIFO order. Change events go over pub/sub.
//
// # Redis Key Schema
//
//   - contextgraph:documents - List of DocumentMessage (LPUSH/BRPOP)
//   - contextgraph:notes - List of NoteMessage (LPUSH/BRPOP)
//   - contextgraph:events - Pub/Sub channel of Event
//
// All payloads are JSON.
//
// # Usage
//
//	client, err := queue.NewRedisClient(queue.RedisOptions{URL: "redis://localhost:6379"})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	err = client.PushDocument(ctx, queue.DefaultDocumentQueue, "run-1", persist.Save(store))
//
//	msg, err := client.PopDocument(ctx, queue.DefaultDocumentQueue, 5*time.Second)
//	if err == nil && msg != nil {
//		store, err = persist.Load(msg.Document)
//	}
package queue
