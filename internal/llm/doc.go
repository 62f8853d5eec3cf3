// Package llm defines the contract for the completion/inference service that
// tasks delegate to. The framework treats the real provider as an external
// collaborator: it only consumes the normalized request/response shapes
// together with the token counts reported by the provider. The local
// subpackage ships a deterministic offline implementation for demos and tests.
package llm
