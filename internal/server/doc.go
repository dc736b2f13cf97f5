// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server exposes a prism session over a local HTTP API, so that
// browser or editor front-ends can drive the same orchestrator the TUI uses.
//
// # Endpoints
//
//   - GET    /health                - Liveness and busy flag (no auth)
//   - GET    /v1/state              - Mode, request config, cycle state, models,
//     and the id of the message being streamed
//   - PUT    /v1/mode               - Switch mode (clears the conversation)
//   - POST   /v1/config/toggle      - Toggle a chat flag
//   - PUT    /v1/config/resolution  - Set the image resolution tier
//   - POST   /v1/preview            - Route a request without sending it
//   - GET    /v1/messages           - Conversation snapshot
//   - GET    /v1/messages/last      - Latest message, in progress or settled
//   - POST   /v1/messages           - Submit a request (202; ?wait=true blocks)
//   - DELETE /v1/messages           - Clear the conversation
//   - GET    /v1/events             - Server-sent events: message, state, credential
//   - GET    /v1/credential         - Grant status
//   - POST   /v1/credential         - Answer a grant or pre-select a key
//   - DELETE /v1/credential         - Abandon a grant or forget the key
//   - GET    /v1/media/{id}         - Generated media for a message
//   - GET    /v1/cycles             - Recent cycle ledger entries
//   - GET    /v1/cycles/stats       - Ledger totals
//
// Submissions made while a cycle is in flight are rejected with 409.
//
// # Security
//
//   - Binds to 127.0.0.1 by default
//   - Optional bearer token, compared in constant time
//   - CORS only for configured origins
//   - Panic recovery and request logging via slog
package server
