// Package subscriber maintains the durable list of Telegram chats that receive
// checkpoint notifications.
//
// A chat is registered the first time it sends the bot anything and is never
// removed. The registry keeps no authoritative copy in memory: every operation
// loads the full list from a Store and every mutation rewrites it, so a
// hand-edited store is picked up on the next message.
//
// Two stores are provided:
//   - FileStore: a JSON array of chat ids (e.g. [123,456]), replaced atomically
//   - SQLiteStore: the subscribers table created by the embedded migrations
package subscriber
