// Package model defines the normalized request/response contract between the
// orchestrator and a language-model provider, unified across vendors so the
// round loop needs no per-provider branching. Provider adapters live in
// subpackages; MockModel supports deterministic tests.
package model
