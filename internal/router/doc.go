// Package router is the request-interception surface: an http.Handler
// gateway that fronts the upstream origin and applies the offline
// caching strategies.
//
// Navigations are network-first with a cached offline document as
// fallback and an inline unavailable page as the fallback of last
// resort. Everything else is cache-first with fire-and-forget
// write-through on miss; failed image fetches degrade to an empty SVG
// placeholder so layouts keep their boxes.
//
// The package also hosts the control API (gorilla/mux): the page-facing
// message endpoint, client registration, and platform event injection.
// Fetch handling runs concurrently in server goroutines and never
// touches the worker's event loop; only the control API enqueues events.
package router
