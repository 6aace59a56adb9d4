// Package chat talks to the chat platform that hosts application posts.
//
// Client is the narrow surface the pipeline, decision machine, and reminder
// sweep need. HTTPClient implements it against a Discord-style REST API.
// Non-2xx responses become *APIError values; 429 responses carry the server's
// retry-after so the retry package can back off.
package chat
