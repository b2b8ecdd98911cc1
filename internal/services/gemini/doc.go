// Package gemini wraps the Google Generative Language REST API.
//
// The package exposes two surfaces: a synchronous generateContent client
// used by the interactive runner, and the Files/Batches endpoints used by
// the asynchronous batch pipeline (resumable upload, batch submission,
// polling and result download).
//
// Errors carry enough structure for callers to classify them: HTTP
// failures surface as *StatusError, and transport failures are detectable
// through IsNetworkError. The client itself retries transient failures
// with exponential backoff and honors Retry-After on 429 responses.
package gemini
