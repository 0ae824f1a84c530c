// Package http exposes the reservation engine over HTTP.
//
// Identity arrives pre-resolved from an upstream gateway through the
// X-Subject-Id and X-Subject-Role headers (see HeaderIdentityResolver).
// Requests without X-Subject-Id are anonymous and may only read the resource
// catalog.
//
// The router exposes the following endpoints:
//   - GET /resources: public catalog listing. Response {"resources":[...],"from_cache"}
//     with an X-Cache: HIT|MISS header.
//   - POST /resources, GET/PUT/DELETE /resources/{id}: resource administration
//     exchanging the resourceDTO payload defined in resource_handler.go. Mutations
//     require the ADMIN role.
//   - GET /resources/{id}/availability?start=&end=: reports {"available": bool} for
//     an RFC 3339 interval without exposing other subjects' reservations.
//   - GET/POST /reservations, GET/PUT/DELETE /reservations/{id}: reservation
//     management exchanging the reservationDTO payload defined in
//     reservation_handler.go. Listing is scoped to the caller unless they are ADMIN.
//   - GET /users, DELETE /users/{id}: administrator only directory endpoints.
//   - GET /events: websocket stream of reservation events.
//   - GET /metrics: Prometheus exposition.
//   - GET /healthz: store reachability.
//
// Errors are JSON {"error_code","message","errors"}: 400 malformed body,
// 401 unauthenticated, 403 insufficient role or not owner, 404 not found,
// 409 room unavailable or duplicate, 422 validation, 503 temporarily
// unavailable with Retry-After.
package http
