// Package router gates and handles inbound messages for one bot.
//
// ShouldRespond encodes the response policy: never self, direct
// conversations by flag, group rooms by whitelist plus addressing.
// HandleMessage runs the full path from event to chunked reply and
// converts every failure into a single generic fallback message.
package router
