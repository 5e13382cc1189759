// Project Structure Overview
/*
aet-backend/
├── cmd/
│   └── server/
│       └── main.go
├── internal/
│   ├── config/          env configuration, DSN
│   ├── conflict/        plate normalization, classification, resolver
│   ├── models/          vehicles, license requests, issued licenses
│   ├── repository/      issued license queries, Redis-backed decorator
│   ├── cache/           Redis candidate cache
│   ├── notifier/        change events
│   ├── websocket/       push hub
│   ├── services/
│   ├── handlers/
│   ├── middleware/
│   ├── metrics/
│   ├── i18n/            pt_BR and en messages
│   ├── database/
│   ├── utils/
│   └── router/
├── go.mod
└── DESIGN.md
*/

// Package aetbackend is the AET license conflict and renewal gating service.
// The server lives in cmd/server.
package aetbackend
