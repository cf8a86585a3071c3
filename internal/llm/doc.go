// Package llm is a minimal client for an OpenAI-compatible chat completions
// endpoint, used by the title and distill generators. Errors come back
// wrapped with the services sentinels so the job runner can classify them.
package llm
