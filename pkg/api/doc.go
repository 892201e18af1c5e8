/*
Package api serves the admin HTTP API.

Routes under /api/v1:

  - sites: register, list, get, delete, and the local mirror view
  - sites/{id}/users|clients|identity|resources: live controller views
  - tokens: issue site-scoped management tokens
  - delegate/{id}/...: the same live views gated on a management token
  - fanout, sync/users: orchestrated operations across site sets
  - events: recent status transitions for dashboards

A fan-out response is always 200 with the full per-site outcome list;
non-2xx statuses are reserved for malformed requests (empty site set,
unknown operation). Primary caller authentication is the front end's
job — only the delegated routes verify credentials here, and they
answer every rejection with the same 401.
*/
package api
