// Package agent implements the conversational behaviors bots run.
//
// The variant set is closed: echo reflects input back, llm generates
// replies through a configured provider (OpenAI or Anthropic) with
// bounded per-conversation history. Factory selects and configures the
// variant from an agent record's type and behavior config.
//
// LLM history lives in a Memory backend. The default keeps turns in
// process; the Redis backend persists them so conversations survive
// restarts.
package agent
