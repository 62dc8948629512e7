// Package openai implements the provider interface against the OpenAI chat
// completions API.
package openai
