package auth

// Identity headers set by the ForwardAuth endpoint and consumed by the
// gateway middleware when the API runs behind Traefik.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
)
